package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mock operation kinds recorded by MockAdapter.
const (
	OpDiscover       = "discover"
	OpConnect        = "connect"
	OpRead           = "read"
	OpWrite          = "write"
	OpSubscribe      = "subscribe"
	OpDisconnect     = "disconnect"
	OpPeerDisconnect = "peer-disconnect"
)

// MockOp is one recorded adapter call.
type MockOp struct {
	Kind   string
	Handle string
	Char   CharacteristicID
	Data   []byte
}

// MockAdapter provides an in-memory Adapter and Scanner backed by MockChip
// peripherals. It supports operation recording, configurable latency, and
// error injection.
type MockAdapter struct {
	mu    sync.Mutex
	chips []*MockChip
	conns map[string]*mockConn

	// Configuration
	latency       time.Duration
	discoverErr   error
	connectErr    error
	readErr       error
	writeErr      error
	blockWriteAck bool
	advRepeats    int

	advCh chan Advertisement

	// Recording for test inspection
	ops      []MockOp
	recordMu sync.Mutex
}

type mockConn struct {
	done chan struct{}
	subs map[CharacteristicID][]*Subscription
}

// MockAdapterOption configures a MockAdapter.
type MockAdapterOption func(*MockAdapter)

// WithChips registers simulated peripherals.
func WithChips(chips ...*MockChip) MockAdapterOption {
	return func(m *MockAdapter) {
		for _, c := range chips {
			m.addChipLocked(c)
		}
	}
}

// WithLatency adds simulated latency to every radio operation.
func WithLatency(d time.Duration) MockAdapterOption {
	return func(m *MockAdapter) {
		m.latency = d
	}
}

// WithDiscoverError injects an error returned by Discover.
func WithDiscoverError(err error) MockAdapterOption {
	return func(m *MockAdapter) {
		m.discoverErr = err
	}
}

// WithConnectError injects an error returned by Connect.
func WithConnectError(err error) MockAdapterOption {
	return func(m *MockAdapter) {
		m.connectErr = err
	}
}

// WithReadError injects an error returned by ReadCharacteristic.
func WithReadError(err error) MockAdapterOption {
	return func(m *MockAdapter) {
		m.readErr = err
	}
}

// WithWriteError injects an error returned by WriteCharacteristic.
func WithWriteError(err error) MockAdapterOption {
	return func(m *MockAdapter) {
		m.writeErr = err
	}
}

// WithWriteAckBlocked makes writes never acknowledge: WriteCharacteristic
// blocks until its context is done and the chip never sees the data.
func WithWriteAckBlocked() MockAdapterOption {
	return func(m *MockAdapter) {
		m.blockWriteAck = true
	}
}

// WithAdvertisementRepeats sets how many times each chip advertises at the
// start of a scan (default: 1).
func WithAdvertisementRepeats(n int) MockAdapterOption {
	return func(m *MockAdapter) {
		m.advRepeats = n
	}
}

// NewMockAdapter creates a new MockAdapter for testing.
func NewMockAdapter(opts ...MockAdapterOption) *MockAdapter {
	m := &MockAdapter{
		conns:      make(map[string]*mockConn),
		advRepeats: 1,
		advCh:      make(chan Advertisement, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddChip registers a simulated peripheral.
func (m *MockAdapter) AddChip(c *MockChip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addChipLocked(c)
}

func (m *MockAdapter) addChipLocked(c *MockChip) {
	m.chips = append(m.chips, c)
	id := c.handle.ID
	c.attach(func(char CharacteristicID, value []byte) {
		m.publish(id, char, value)
	})
}

func (m *MockAdapter) chip(id string) *MockChip {
	for _, c := range m.chips {
		if c.handle.ID == id {
			return c
		}
	}
	return nil
}

// Type returns AdapterMock.
func (m *MockAdapter) Type() AdapterType {
	return AdapterMock
}

// Discover returns the first registered chip matching filter.
func (m *MockAdapter) Discover(ctx context.Context, filter ServiceFilter) (PeripheralHandle, error) {
	m.record(MockOp{Kind: OpDiscover})
	if err := filter.Validate(); err != nil {
		return PeripheralHandle{}, err
	}
	if err := m.delay(ctx); err != nil {
		return PeripheralHandle{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discoverErr != nil {
		return PeripheralHandle{}, m.discoverErr
	}
	for _, c := range m.chips {
		if filter.Matches(c.services) {
			return c.handle, nil
		}
	}
	return PeripheralHandle{}, ErrNoDeviceSelected
}

// Connect marks the peripheral connected. Connecting twice is a no-op.
func (m *MockAdapter) Connect(ctx context.Context, h PeripheralHandle) error {
	m.record(MockOp{Kind: OpConnect, Handle: h.ID})
	if err := m.delay(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	if m.chip(h.ID) == nil {
		return fmt.Errorf("%w: unknown peripheral %s", ErrConnectionFailed, h.ID)
	}
	if _, ok := m.conns[h.ID]; ok {
		return nil
	}
	m.conns[h.ID] = &mockConn{
		done: make(chan struct{}),
		subs: make(map[CharacteristicID][]*Subscription),
	}
	return nil
}

// ReadCharacteristic returns the chip's current value for id.
func (m *MockAdapter) ReadCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID) ([]byte, error) {
	m.record(MockOp{Kind: OpRead, Handle: h.ID, Char: id})
	if err := checkDirection(id, DirRead, ErrReadFailed); err != nil {
		return nil, err
	}
	if err := m.delay(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	m.mu.Lock()
	_, connected := m.conns[h.ID]
	readErr := m.readErr
	c := m.chip(h.ID)
	m.mu.Unlock()

	if !connected || c == nil {
		return nil, ErrNotConnected
	}
	if readErr != nil {
		return nil, readErr
	}
	return c.read(id), nil
}

// WriteCharacteristic delivers data to the chip and returns once the chip
// accepted it.
func (m *MockAdapter) WriteCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID, data []byte) error {
	m.record(MockOp{Kind: OpWrite, Handle: h.ID, Char: id, Data: append([]byte(nil), data...)})
	if err := checkDirection(id, DirWrite, ErrWriteFailed); err != nil {
		return err
	}

	m.mu.Lock()
	_, connected := m.conns[h.ID]
	writeErr := m.writeErr
	blocked := m.blockWriteAck
	c := m.chip(h.ID)
	m.mu.Unlock()

	if !connected || c == nil {
		return ErrNotConnected
	}
	if writeErr != nil {
		return writeErr
	}
	if blocked {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", ErrWriteFailed, ctx.Err())
	}
	if err := m.delay(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return c.write(id, data)
}

// Subscribe registers a notification feed for id.
func (m *MockAdapter) Subscribe(ctx context.Context, h PeripheralHandle, id CharacteristicID) (*Subscription, error) {
	m.record(MockOp{Kind: OpSubscribe, Handle: h.ID, Char: id})
	if err := checkDirection(id, DirNotify, ErrNotificationsUnsupported); err != nil {
		return nil, err
	}
	if err := m.delay(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[h.ID]
	if !ok {
		return nil, ErrNotConnected
	}
	if c := m.chip(h.ID); c == nil || !c.notify {
		return nil, ErrNotificationsUnsupported
	}

	var sub *Subscription
	sub = NewSubscription(DefaultSubscriptionBuffer, func() error {
		m.removeSubscription(h.ID, id, sub)
		return nil
	})
	conn.subs[id] = append(conn.subs[id], sub)
	return sub, nil
}

// Disconnect tears down the mock connection and cancels its subscriptions.
func (m *MockAdapter) Disconnect(h PeripheralHandle) error {
	m.record(MockOp{Kind: OpDisconnect, Handle: h.ID})
	m.drop(h.ID)
	return nil
}

// Disconnected returns a channel closed when the connection to h drops.
func (m *MockAdapter) Disconnected(h PeripheralHandle) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[h.ID]; ok {
		return conn.done
	}
	return closedCh
}

// Scan reports each registered chip matching filter, then any advertisement
// injected with Advertise, until ctx is done.
func (m *MockAdapter) Scan(ctx context.Context, filter ServiceFilter, fn func(Advertisement)) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	chips := append([]*MockChip(nil), m.chips...)
	repeats := m.advRepeats
	m.mu.Unlock()

	for i := 0; i < repeats; i++ {
		for _, c := range chips {
			adv := c.advertisement()
			if filter.Matches(adv.ServiceIDs) {
				fn(adv)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case adv := <-m.advCh:
			if filter.Matches(adv.ServiceIDs) {
				fn(adv)
			}
		}
	}
}

func (m *MockAdapter) drop(id string) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(conn.done)
	for _, subs := range conn.subs {
		for _, sub := range subs {
			sub.Cancel()
		}
	}
}

func (m *MockAdapter) publish(id string, char CharacteristicID, value []byte) {
	m.mu.Lock()
	var subs []*Subscription
	if conn, ok := m.conns[id]; ok {
		subs = append(subs, conn.subs[char]...)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Deliver(value)
	}
}

func (m *MockAdapter) removeSubscription(id string, char CharacteristicID, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok {
		return
	}
	subs := conn.subs[char]
	for i, s := range subs {
		if s == sub {
			conn.subs[char] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (m *MockAdapter) delay(ctx context.Context) error {
	m.mu.Lock()
	latency := m.latency
	m.mu.Unlock()
	if latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(latency):
		return nil
	}
}

func (m *MockAdapter) record(op MockOp) {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	m.ops = append(m.ops, op)
}

// --- Test helper methods ---

// SimulatePeerDisconnect drops the connection as if the chip went away.
func (m *MockAdapter) SimulatePeerDisconnect(h PeripheralHandle) {
	m.record(MockOp{Kind: OpPeerDisconnect, Handle: h.ID})
	m.drop(h.ID)
}

// Advertise injects an advertisement into an active Scan.
func (m *MockAdapter) Advertise(adv Advertisement) error {
	select {
	case m.advCh <- adv:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("advertise timeout: scan channel full")
	}
}

// Ops returns all recorded operations.
func (m *MockAdapter) Ops() []MockOp {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	result := make([]MockOp, len(m.ops))
	copy(result, m.ops)
	return result
}

// CountOps returns how many operations of kind were recorded, optionally
// restricted to characteristic char (0 matches any).
func (m *MockAdapter) CountOps(kind string, char CharacteristicID) int {
	n := 0
	for _, op := range m.Ops() {
		if op.Kind == kind && (char == 0 || op.Char == char) {
			n++
		}
	}
	return n
}

// ClearRecords clears the recorded operations.
func (m *MockAdapter) ClearRecords() {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	m.ops = m.ops[:0]
}

// IsConnected returns whether h currently has a live connection.
func (m *MockAdapter) IsConnected(h PeripheralHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[h.ID]
	return ok
}

// ActiveSubscriptions returns the number of live subscriptions on h.
func (m *MockAdapter) ActiveSubscriptions(h PeripheralHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[h.ID]
	if !ok {
		return 0
	}
	n := 0
	for _, subs := range conn.subs {
		n += len(subs)
	}
	return n
}

// SetReadError updates the error returned by ReadCharacteristic.
// Pass nil to clear the error.
func (m *MockAdapter) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError updates the error returned by WriteCharacteristic.
// Pass nil to clear the error.
func (m *MockAdapter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetWriteAckBlocked toggles never-acknowledged writes.
func (m *MockAdapter) SetWriteAckBlocked(blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockWriteAck = blocked
}

// SetLatency updates the simulated latency.
func (m *MockAdapter) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}
