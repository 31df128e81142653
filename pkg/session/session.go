package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/transport"
)

// Session is one single-use conversation with one chip: connect, read the
// chip address, write a challenge, await the signature, disconnect.
type Session struct {
	id      string
	adapter transport.Adapter
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	mgr     *Manager

	mu       sync.Mutex
	handle   transport.PeripheralHandle
	state    State
	history  []Transition
	started  bool
	closed   bool
	acquired bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	result   *attestation.Attestation
}

func newSession(adapter transport.Adapter, h transport.PeripheralHandle, o options, mgr *Manager) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		adapter: adapter,
		cfg:     o.cfg,
		log:     o.log.With("session_id", id),
		now:     o.now,
		mgr:     mgr,
		handle:  h,
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Handle returns the peripheral handle, which is zero until discovery
// completes for discovering sessions.
func (s *Session) Handle() transport.PeripheralHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns all transitions so far, oldest first.
func (s *Session) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// Err returns the terminal error, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the attestation of a completed session, or nil.
func (s *Session) Result() *attestation.Attestation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Done returns a channel closed when the session reaches a terminal state
// and has released every resource it held.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run performs the exchange for challenge and returns the attestation. A
// session runs at most once; failed writes are never retried in place.
func (s *Session) Run(ctx context.Context, challenge attestation.Challenge) (*attestation.Attestation, error) {
	s.mu.Lock()
	if s.started {
		closed, err := s.closed, s.err
		s.mu.Unlock()
		if closed && err != nil {
			return nil, err
		}
		return nil, ErrSessionUsed
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	if err := s.cfg.Validate(); err != nil {
		return nil, s.fail(&Error{Reason: ReasonUnsupported, State: StateIdle, Err: err})
	}

	att, err := s.run(runCtx, challenge)
	if err != nil {
		var se *Error
		if !errors.As(err, &se) {
			se = s.classify(runCtx, nil, nil, err)
		}
		return nil, s.fail(se)
	}

	s.mu.Lock()
	s.result = att
	s.mu.Unlock()
	s.transition(StateComplete, ReasonNone)
	s.log.Info("attestation captured",
		"peripheral", s.Handle().String(),
		"chip", att.ChipAddress.Hex(),
		"block", att.Checkpoint.Number)
	return att, nil
}

func (s *Session) run(ctx context.Context, challenge attestation.Challenge) (*attestation.Attestation, error) {
	var (
		h         = s.Handle()
		connected bool
		sub       *transport.Subscription
	)
	defer func() {
		if sub != nil {
			if err := sub.Cancel(); err != nil {
				s.log.Debug("subscription cancel failed", "error", err)
			}
		}
		if connected {
			_ = s.adapter.Disconnect(h)
		}
		s.release()
	}()

	if h.IsZero() {
		if err := s.enter(ctx, StateDiscovering); err != nil {
			return nil, err
		}
		err := s.do(ctx, s.cfg.DiscoverTimeout, nil, func(stepCtx context.Context) error {
			found, err := s.adapter.Discover(stepCtx, s.cfg.Filter)
			h = found
			return err
		})
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.handle = h
		s.mu.Unlock()
	}

	if err := s.acquire(h); err != nil {
		return nil, &Error{Reason: ReasonBusy, State: s.State(), Err: err}
	}

	if err := s.enter(ctx, StateConnecting); err != nil {
		return nil, err
	}
	err := s.do(ctx, s.cfg.ConnectTimeout, nil, func(stepCtx context.Context) error {
		return s.adapter.Connect(stepCtx, h)
	})
	if err != nil {
		return nil, err
	}
	connected = true
	link := s.adapter.Disconnected(h)

	if err := s.enter(ctx, StateConnected); err != nil {
		return nil, err
	}

	chip, err := s.readChipAddress(ctx, h, link)
	if err != nil {
		return nil, err
	}

	var pubKey []byte
	if s.cfg.ReadPublicKey {
		pubKey, err = s.readHex(ctx, h, link, transport.CharPublicKey)
		if err != nil {
			return nil, err
		}
	}

	// Subscribe before writing so the signature notification cannot be missed.
	err = s.do(ctx, s.cfg.ReadTimeout, link, func(stepCtx context.Context) error {
		var err error
		sub, err = s.adapter.Subscribe(stepCtx, h, transport.CharOutputSignature)
		if errors.Is(err, transport.ErrNotificationsUnsupported) {
			s.log.Debug("notifications unsupported, falling back to polling", "peripheral", h.ID)
			sub = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.enter(ctx, StateAwaitingAck); err != nil {
		return nil, err
	}
	inputChar, inputData := transport.CharInputMessage, challenge.Payload()
	if s.cfg.Hashed {
		inputChar, inputData = transport.CharInputHashedMessage, challenge.HashedPayload()
	}
	err = s.do(ctx, s.cfg.WriteTimeout, link, func(stepCtx context.Context) error {
		return s.adapter.WriteCharacteristic(stepCtx, h, inputChar, transport.EncodeHex(inputData))
	})
	if err != nil {
		return nil, err
	}

	if err := s.enter(ctx, StateAwaitingSignature); err != nil {
		return nil, err
	}
	var sig []byte
	err = s.do(ctx, s.cfg.SignatureTimeout, link, func(stepCtx context.Context) error {
		var err error
		if sub != nil {
			sig, err = awaitNotification(stepCtx, sub)
		} else {
			sig, err = s.pollSignature(stepCtx, h)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	att := &attestation.Attestation{
		Signature:   sig,
		Checkpoint:  challenge.Checkpoint,
		ChipAddress: chip,
		Claimant:    challenge.Claimant,
		PublicKey:   pubKey,
		CapturedAt:  s.now(),
	}
	if s.cfg.ReadSignedHash {
		signed, err := s.readHex(ctx, h, link, transport.CharOutputSignedHash)
		if err != nil {
			s.log.Debug("signed hash unavailable", "error", err)
		} else {
			att.SignedHash = signed
		}
	}
	return att, nil
}

// Close aborts the session. A running session fails with ReasonCancelled;
// Close returns once its subscription and connection are released.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.fail(&Error{Reason: ReasonCancelled, State: StateIdle, Err: context.Canceled})
		s.release()
		close(s.done)
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
	return nil
}

func (s *Session) readChipAddress(ctx context.Context, h transport.PeripheralHandle, link <-chan struct{}) (addr common.Address, err error) {
	var raw []byte
	err = s.do(ctx, s.cfg.ReadTimeout, link, func(stepCtx context.Context) error {
		var err error
		raw, err = s.adapter.ReadCharacteristic(stepCtx, h, transport.CharChipAddress)
		return err
	})
	if err != nil {
		return addr, err
	}
	text, err := transport.DecodeText(raw)
	if err != nil {
		return addr, &Error{Reason: ReasonInvalidResponse, State: s.State(), Err: err}
	}
	parsed, err := attestation.ParseAddress(text)
	if err != nil {
		return addr, &Error{Reason: ReasonInvalidResponse, State: s.State(), Err: err}
	}
	return parsed, nil
}

func (s *Session) readHex(ctx context.Context, h transport.PeripheralHandle, link <-chan struct{}, id transport.CharacteristicID) ([]byte, error) {
	var raw []byte
	err := s.do(ctx, s.cfg.ReadTimeout, link, func(stepCtx context.Context) error {
		var err error
		raw, err = s.adapter.ReadCharacteristic(stepCtx, h, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	out, err := transport.DecodeHex(raw)
	if err != nil {
		return nil, &Error{Reason: ReasonInvalidResponse, State: s.State(), Err: fmt.Errorf("%s: %w", id, err)}
	}
	return out, nil
}

// awaitNotification waits for the first non-empty signature notification.
func awaitNotification(ctx context.Context, sub *transport.Subscription) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case value, ok := <-sub.C():
			if !ok {
				return nil, transport.ErrNotConnected
			}
			sig, ready, err := parseSignature(value)
			if err != nil {
				return nil, err
			}
			if ready {
				return sig, nil
			}
		}
	}
}

// pollSignature reads the signature characteristic with exponential backoff
// after the settle delay.
func (s *Session) pollSignature(ctx context.Context, h transport.PeripheralHandle) ([]byte, error) {
	if err := sleep(ctx, s.cfg.SettleDelay); err != nil {
		return nil, err
	}
	interval := s.cfg.PollInterval
	for {
		value, err := s.adapter.ReadCharacteristic(ctx, h, transport.CharOutputSignature)
		if err != nil {
			return nil, err
		}
		sig, ready, err := parseSignature(value)
		if err != nil {
			return nil, err
		}
		if ready {
			return sig, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
		interval *= 2
		if s.cfg.MaxPollInterval > 0 && interval > s.cfg.MaxPollInterval {
			interval = s.cfg.MaxPollInterval
		}
	}
}

// parseSignature decodes a signature value. An empty value means the chip
// has not signed yet.
func parseSignature(value []byte) (sig []byte, ready bool, err error) {
	value = bytes.TrimRight(value, "\x00")
	if len(bytes.TrimSpace(value)) == 0 {
		return nil, false, nil
	}
	sig, err = transport.DecodeHex(value)
	if err != nil {
		return nil, false, err
	}
	return sig, len(sig) > 0, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs op under a step deadline. When link is non-nil the step is also
// aborted as soon as the peripheral disconnects. Failures are returned as
// *Error.
func (s *Session) do(ctx context.Context, timeout time.Duration, link <-chan struct{}, op func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if link != nil {
		go func() {
			select {
			case <-link:
				cancel()
			case <-stepCtx.Done():
			}
		}()
	}

	err := op(stepCtx)
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return s.classify(ctx, stepCtx, link, err)
}

func (s *Session) classify(parent, step context.Context, link <-chan struct{}, err error) *Error {
	e := &Error{State: s.State(), Err: err}
	switch {
	case link != nil && isClosed(link):
		e.Reason = ReasonDisconnected
	case s.isClosed() || errors.Is(parent.Err(), context.Canceled):
		e.Reason = ReasonCancelled
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		e.Reason = ReasonTimeout
	case step != nil && errors.Is(step.Err(), context.DeadlineExceeded):
		e.Reason = ReasonTimeout
	case errors.Is(err, transport.ErrUnsupported):
		e.Reason = ReasonUnsupported
	case transport.IsDeviceSelectionError(err):
		e.Reason = ReasonDeviceSelection
	case errors.Is(err, transport.ErrInvalidText):
		e.Reason = ReasonInvalidResponse
	default:
		e.Reason = ReasonTransport
	}
	return e
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// enter moves to the next state unless the run was cancelled in between.
func (s *Session) enter(ctx context.Context, to State) error {
	if err := ctx.Err(); err != nil {
		return s.classify(ctx, nil, nil, err)
	}
	s.transition(to, ReasonNone)
	return nil
}

func (s *Session) transition(to State, reason Reason) {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		s.log.Error("illegal session transition", "from", from, "to", to)
		return
	}
	s.state = to
	s.history = append(s.history, Transition{From: from, To: to, Reason: reason, At: s.now()})
	s.mu.Unlock()

	s.log.Debug("session transition", "from", from, "to", to, "reason", reason)
}

// fail records e as the terminal outcome and returns it.
func (s *Session) fail(e *Error) error {
	to := StateFailed
	if e.Reason == ReasonDisconnected && CanTransition(s.State(), StateDisconnected) {
		to = StateDisconnected
	}
	s.mu.Lock()
	s.err = e
	s.mu.Unlock()
	s.transition(to, e.Reason)
	s.log.Warn("session failed", "state", e.State, "reason", e.Reason, "error", e.Err)
	return e
}

func (s *Session) acquire(h transport.PeripheralHandle) error {
	if s.mgr == nil {
		return nil
	}
	s.mu.Lock()
	acquired := s.acquired
	s.mu.Unlock()
	if acquired {
		return nil
	}
	if err := s.mgr.acquire(h, s); err != nil {
		return err
	}
	s.mu.Lock()
	s.acquired = true
	s.mu.Unlock()
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	acquired := s.acquired
	s.acquired = false
	h := s.handle
	s.mu.Unlock()
	if acquired && s.mgr != nil {
		s.mgr.release(h, s)
	}
}
