//go:build ble

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// maxAttributeSize is the largest characteristic value the chip produces.
const maxAttributeSize = 512

func bleAvailable() bool {
	return true
}

// bleCharacteristic is the subset of bluetooth.DeviceCharacteristic used by
// the adapter.
type bleCharacteristic interface {
	Read(data []byte) (int, error)
	Write(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

type bleLink struct {
	device bluetooth.Device
	chars  map[CharacteristicID]bleCharacteristic
	done   chan struct{}
	once   sync.Once
}

func (l *bleLink) markDown() {
	l.once.Do(func() { close(l.done) })
}

// BLEAdapter talks to chips through the host Bluetooth controller.
type BLEAdapter struct {
	radio *bluetooth.Adapter
	log   *slog.Logger

	scanMu sync.Mutex

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	links map[string]*bleLink
}

func newBLEAdapter(log *slog.Logger) (Adapter, error) {
	radio := bluetooth.DefaultAdapter
	if err := radio.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	a := &BLEAdapter{
		radio: radio,
		log:   log,
		seen:  make(map[string]bluetooth.Address),
		links: make(map[string]*bleLink),
	}
	radio.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		link, ok := a.links[id]
		if ok {
			delete(a.links, id)
		}
		a.mu.Unlock()
		if ok {
			a.log.Info("peripheral disconnected", "peripheral", id)
			link.markDown()
		}
	})
	return a, nil
}

// Type returns AdapterBLE.
func (a *BLEAdapter) Type() AdapterType {
	return AdapterBLE
}

// Scan runs a radio scan until ctx is done.
func (a *BLEAdapter) Scan(ctx context.Context, filter ServiceFilter, fn func(Advertisement)) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.radio.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			ids := advertisedServices(result, filter.ServiceID)
			if !filter.Matches(ids) {
				return
			}
			id := result.Address.String()
			a.mu.Lock()
			a.seen[id] = result.Address
			a.mu.Unlock()
			fn(Advertisement{
				Handle:     PeripheralHandle{ID: id, Label: result.LocalName()},
				ServiceIDs: ids,
				RSSI:       result.RSSI,
				SeenAt:     time.Now(),
			})
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil
	case <-ctx.Done():
		if err := a.radio.StopScan(); err != nil {
			a.log.Warn("stop scan failed", "error", err)
		}
		<-errCh
		return nil
	}
}

// advertisedServices lists the 16-bit services in an advertisement. Raw
// payloads are parsed directly; structured payloads only answer membership,
// so the chip service and want are probed explicitly.
func advertisedServices(result bluetooth.ScanResult, want uint16) []uint16 {
	ids := parseServiceIDs(result.Bytes())
	for _, sd := range result.ServiceData() {
		if sd.UUID.Is16Bit() {
			ids = appendServiceID(ids, sd.UUID.Get16Bit())
		}
	}
	for _, id := range []uint16{ServiceID, want} {
		if id != 0 && result.HasServiceUUID(bluetooth.New16BitUUID(id)) {
			ids = appendServiceID(ids, id)
		}
	}
	return ids
}

// Discover scans until the first matching peripheral is seen.
func (a *BLEAdapter) Discover(ctx context.Context, filter ServiceFilter) (PeripheralHandle, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		found PeripheralHandle
		once  sync.Once
	)
	err := a.Scan(scanCtx, filter, func(adv Advertisement) {
		once.Do(func() {
			found = adv.Handle
			cancel()
		})
	})
	if err != nil {
		return PeripheralHandle{}, err
	}
	if found.IsZero() {
		if ctx.Err() != nil {
			return PeripheralHandle{}, fmt.Errorf("%w: %w", ErrNoDeviceSelected, ctx.Err())
		}
		return PeripheralHandle{}, ErrNoDeviceSelected
	}
	return found, nil
}

// Connect connects and resolves the chip service characteristics.
func (a *BLEAdapter) Connect(ctx context.Context, h PeripheralHandle) error {
	a.mu.Lock()
	if _, ok := a.links[h.ID]; ok {
		a.mu.Unlock()
		return nil
	}
	addr, ok := a.seen[h.ID]
	a.mu.Unlock()
	if !ok {
		a.log.Debug("peripheral not seen yet, scanning", "peripheral", h.ID)
		found, err := Locate(ctx, a, h.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		a.mu.Lock()
		addr = a.seen[found.ID]
		a.mu.Unlock()
	}

	link, err := runBlocking(ctx, func() (*bleLink, error) {
		device, err := a.radio.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		chars, err := resolveCharacteristics(device)
		if err != nil {
			_ = device.Disconnect()
			return nil, err
		}
		return &bleLink{device: device, chars: chars, done: make(chan struct{})}, nil
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.links[h.ID] = link
	a.mu.Unlock()
	a.log.Info("peripheral connected", "peripheral", h.String())
	return nil
}

func resolveCharacteristics(device bluetooth.Device) (map[CharacteristicID]bleCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.New16BitUUID(ServiceID)})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}

	want := make([]bluetooth.UUID, 0, len(ChipService.Characteristics))
	for _, id := range ChipService.IDs() {
		want = append(want, bluetooth.New16BitUUID(uint16(id)))
	}
	chars, err := services[0].DiscoverCharacteristics(want)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCharacteristicNotFound, err)
	}

	out := make(map[CharacteristicID]bleCharacteristic, len(chars))
	for i := range chars {
		for _, id := range ChipService.IDs() {
			if chars[i].UUID() == bluetooth.New16BitUUID(uint16(id)) {
				out[id] = &chars[i]
			}
		}
	}
	return out, nil
}

func (a *BLEAdapter) characteristic(h PeripheralHandle, id CharacteristicID) (bleCharacteristic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	link, ok := a.links[h.ID]
	if !ok {
		return nil, ErrNotConnected
	}
	c, ok := link.chars[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, id)
	}
	return c, nil
}

// ReadCharacteristic reads the current value of id.
func (a *BLEAdapter) ReadCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID) ([]byte, error) {
	if err := checkDirection(id, DirRead, ErrReadFailed); err != nil {
		return nil, err
	}
	c, err := a.characteristic(h, id)
	if err != nil {
		return nil, err
	}
	return runBlocking(ctx, func() ([]byte, error) {
		buf := make([]byte, maxAttributeSize)
		n, err := c.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		return buf[:n], nil
	})
}

// WriteCharacteristic writes data with response.
func (a *BLEAdapter) WriteCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID, data []byte) error {
	if err := checkDirection(id, DirWrite, ErrWriteFailed); err != nil {
		return err
	}
	c, err := a.characteristic(h, id)
	if err != nil {
		return err
	}
	_, err = runBlocking(ctx, func() (int, error) {
		n, err := c.Write(data)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		return n, nil
	})
	return err
}

// Subscribe enables notifications for id.
func (a *BLEAdapter) Subscribe(ctx context.Context, h PeripheralHandle, id CharacteristicID) (*Subscription, error) {
	if err := checkDirection(id, DirNotify, ErrNotificationsUnsupported); err != nil {
		return nil, err
	}
	c, err := a.characteristic(h, id)
	if err != nil {
		return nil, err
	}

	sub := NewSubscription(DefaultSubscriptionBuffer, func() error {
		return c.EnableNotifications(nil)
	})
	_, err = runBlocking(ctx, func() (struct{}, error) {
		if err := c.EnableNotifications(func(buf []byte) { sub.Deliver(buf) }); err != nil {
			return struct{}{}, fmt.Errorf("%w: %v", ErrNotificationsUnsupported, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-a.Disconnected(h):
			_ = sub.Cancel()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Disconnect closes the connection to h.
func (a *BLEAdapter) Disconnect(h PeripheralHandle) error {
	a.mu.Lock()
	link, ok := a.links[h.ID]
	if ok {
		delete(a.links, h.ID)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	link.markDown()
	if err := link.device.Disconnect(); err != nil {
		a.log.Debug("radio disconnect failed", "peripheral", h.ID, "error", err)
	}
	return nil
}

// Disconnected returns a channel closed when the link to h drops.
func (a *BLEAdapter) Disconnected(h PeripheralHandle) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if link, ok := a.links[h.ID]; ok {
		return link.done
	}
	return closedCh
}

// runBlocking runs fn on its own goroutine so that a radio call that ignores
// cancellation cannot outlive ctx from the caller's point of view.
func runBlocking[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
