package transport

import (
	"sync"
	"sync/atomic"
)

// DefaultSubscriptionBuffer is the notification buffer used by adapters.
const DefaultSubscriptionBuffer = 8

// Subscription is a cancellable feed of characteristic notifications.
// Adapters push values with Deliver; consumers read from C until Done is
// closed.
type Subscription struct {
	ch     chan []byte
	done   chan struct{}
	cancel func() error

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// NewSubscription creates a subscription with the given buffer size. cancel is
// invoked once, on the first call to Cancel, to stop notifications at the
// radio layer. It may be nil.
func NewSubscription(buffer int, cancel func() error) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	return &Subscription{
		ch:     make(chan []byte, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// C returns the notification channel. It is closed after Cancel.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Done returns a channel closed when the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Deliver queues a copy of value for the consumer. It never blocks: if the
// buffer is full or the subscription is cancelled the value is dropped and
// Deliver returns false.
func (s *Subscription) Deliver(value []byte) bool {
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- buf:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns how many notifications were discarded because the buffer
// was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel stops the feed and releases the radio-level listener. It is safe to
// call more than once; only the first call reaches the radio.
func (s *Subscription) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.ch)
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		return cancel()
	}
	return nil
}

// IsCancelled reports whether Cancel has been called.
func (s *Subscription) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
