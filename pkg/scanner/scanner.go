// Package scanner enumerates nearby chips for bulk provisioning.
//
// A scan reports each peripheral once, however often it advertises, and
// appends that first sighting to the discovery log. Scanning does not touch
// connections, so it can run beside live chip sessions.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xtools-at/esp5791/pkg/store"
	"github.com/xtools-at/esp5791/pkg/transport"
)

// ErrUnknownScan is returned by StopScan for a handle this scanner did not start.
var ErrUnknownScan = errors.New("scanner: unknown scan")

// Callback receives each newly discovered peripheral and the service IDs it
// advertised. Callbacks for one scan are never concurrent.
type Callback func(h transport.PeripheralHandle, serviceIDs []uint16)

// Log is the append-only discovery log. *store.Store implements it.
type Log interface {
	AppendSighting(entry *store.Sighting) (int64, error)
}

// Scanner starts and stops scans over a transport.
type Scanner struct {
	source transport.Scanner
	filter transport.ServiceFilter
	log    Log
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	scans map[string]*ScanHandle
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFilter sets the advertisement filter. Defaults to the chip service.
func WithFilter(f transport.ServiceFilter) Option {
	return func(s *Scanner) {
		s.filter = f
	}
}

// WithLog records discoveries in l.
func WithLog(l Log) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithClock sets the time source for sightings without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// New creates a Scanner reading advertisements from source.
func New(source transport.Scanner, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		source: source,
		filter: transport.DefaultServiceFilter(),
		now:    time.Now,
		scans:  make(map[string]*ScanHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if err := s.filter.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// StartScan begins a scan that runs until StopScan is called or ctx is done.
func (s *Scanner) StartScan(ctx context.Context, onDiscovered Callback) (*ScanHandle, error) {
	if onDiscovered == nil {
		return nil, errors.New("scanner: callback is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &ScanHandle{
		id:        uuid.New().String(),
		cancel:    cancel,
		done:      make(chan struct{}),
		seen:      make(map[string]transport.PeripheralHandle),
		StartedAt: s.now(),
	}
	log := s.logger.With("scan_id", h.id)

	s.mu.Lock()
	s.scans[h.id] = h
	s.mu.Unlock()

	go func() {
		defer close(h.done)
		defer s.forget(h.id)

		err := s.source.Scan(ctx, s.filter, func(adv transport.Advertisement) {
			if !h.observe(adv.Handle) {
				return
			}
			s.record(log, h.id, adv)
			onDiscovered(adv.Handle, adv.ServiceIDs)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			h.setErr(err)
			log.Warn("scan failed", "error", err)
			return
		}
		log.Debug("scan stopped", "discovered", h.Count())
	}()

	log.Info("scan started", "service", s.filter.ServiceID, "accept_all", s.filter.AcceptAll)
	return h, nil
}

// StopScan stops h and waits for its last callback to return. Stopping a
// finished scan is a no-op.
func (s *Scanner) StopScan(h *ScanHandle) error {
	if h == nil || h.cancel == nil {
		return ErrUnknownScan
	}
	h.cancel()
	<-h.done
	return nil
}

// Active returns the IDs of running scans.
func (s *Scanner) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.scans))
	for id := range s.scans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scanner) forget(id string) {
	s.mu.Lock()
	delete(s.scans, id)
	s.mu.Unlock()
}

func (s *Scanner) record(log *slog.Logger, scanID string, adv transport.Advertisement) {
	log.Info("peripheral discovered", "peripheral", adv.Handle.ID, "label", adv.Handle.Label, "rssi", adv.RSSI)
	if s.log == nil {
		return
	}
	seenAt := adv.SeenAt
	if seenAt.IsZero() {
		seenAt = s.now()
	}
	_, err := s.log.AppendSighting(&store.Sighting{
		ScanID:       scanID,
		PeripheralID: adv.Handle.ID,
		Label:        adv.Handle.Label,
		ServiceIDs:   adv.ServiceIDs,
		RSSI:         adv.RSSI,
		SeenAt:       seenAt,
	})
	if err != nil {
		log.Warn("sighting not recorded", "peripheral", adv.Handle.ID, "error", err)
	}
}

// ScanHandle identifies one running or finished scan.
type ScanHandle struct {
	id        string
	cancel    context.CancelFunc
	done      chan struct{}
	StartedAt time.Time

	mu   sync.Mutex
	seen map[string]transport.PeripheralHandle
	err  error
}

// ID returns the scan ID, which is also recorded with every sighting.
func (h *ScanHandle) ID() string {
	return h.id
}

// Done is closed when the scan has stopped.
func (h *ScanHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error that ended the scan, if it failed.
func (h *ScanHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Count returns the number of distinct peripherals discovered.
func (h *ScanHandle) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

// Discovered returns the distinct peripherals seen so far, ordered by ID.
func (h *ScanHandle) Discovered() []transport.PeripheralHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]transport.PeripheralHandle, 0, len(h.seen))
	for _, p := range h.seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// observe reports whether p is new to this scan.
func (h *ScanHandle) observe(p transport.PeripheralHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seen[p.ID]; ok {
		return false
	}
	h.seen[p.ID] = p
	return true
}

func (h *ScanHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
