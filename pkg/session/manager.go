package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xtools-at/esp5791/pkg/transport"
)

// Manager hands out sessions and guarantees at most one live session per
// peripheral. Sessions against distinct peripherals run concurrently.
type Manager struct {
	adapter transport.Adapter
	opts    options

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager creates a manager. Options apply to every session it creates.
func NewManager(adapter transport.Adapter, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		adapter: adapter,
		opts:    o,
		active:  make(map[string]*Session),
	}, nil
}

// NewSession creates a session for h. If h is zero the session discovers a
// chip when it runs and claims it then. A handle that already has a live
// session is rejected with ErrBusy.
func (m *Manager) NewSession(h transport.PeripheralHandle) (*Session, error) {
	s := newSession(m.adapter, h, m.opts, m)
	if h.IsZero() {
		return s, nil
	}
	if err := m.acquire(h, s); err != nil {
		return nil, &Error{Reason: ReasonBusy, State: StateIdle, Err: err}
	}
	s.acquired = true
	return s, nil
}

// Active returns the IDs of peripherals with a live session, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Logger returns the logger sessions inherit.
func (m *Manager) Logger() *slog.Logger {
	return m.opts.log
}

func (m *Manager) acquire(h transport.PeripheralHandle, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.active[h.ID]; ok && owner != s {
		return fmt.Errorf("%w: %s is held by session %s", transport.ErrAlreadyConnected, h, owner.ID())
	}
	m.active[h.ID] = s
	return nil
}

func (m *Manager) release(h transport.PeripheralHandle, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[h.ID] == s {
		delete(m.active, h.ID)
	}
}
