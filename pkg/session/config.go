package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/xtools-at/esp5791/pkg/transport"
)

// Config holds per-step timeouts and exchange policy.
type Config struct {
	DiscoverTimeout  time.Duration
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SignatureTimeout time.Duration

	// SettleDelay is waited after the challenge write before the first
	// signature read, only when the chip cannot push notifications.
	SettleDelay time.Duration

	// PollInterval is the initial delay between signature reads while
	// polling; it doubles up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// Filter scopes discovery when the session has no handle yet.
	Filter transport.ServiceFilter

	// Hashed writes keccak256(payload) to the hashed input characteristic
	// instead of the raw payload.
	Hashed bool

	// ReadPublicKey reads the chip public key before the challenge.
	ReadPublicKey bool

	// ReadSignedHash reads the signed message hash after the signature.
	// Failures are logged and ignored.
	ReadSignedHash bool
}

// DefaultConfig returns the defaults. The signature wait has the longest
// bound because chip signing latency dominates the exchange.
func DefaultConfig() Config {
	return Config{
		DiscoverTimeout:  30 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		SignatureTimeout: 15 * time.Second,
		SettleDelay:      200 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		MaxPollInterval:  time.Second,
		Filter:           transport.DefaultServiceFilter(),
		ReadSignedHash:   true,
	}
}

// Validate checks that every timeout is positive.
func (c Config) Validate() error {
	if c.DiscoverTimeout <= 0 || c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 ||
		c.WriteTimeout <= 0 || c.SignatureTimeout <= 0 {
		return errors.New("session: all step timeouts must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("session: poll interval must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.New("session: settle delay must not be negative")
	}
	return c.Filter.Validate()
}

// Option configures a session or manager.
type Option func(*options)

type options struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

func defaultOptions() options {
	return options{
		cfg: DefaultConfig(),
		log: slog.Default(),
		now: time.Now,
	}
}

// WithConfig replaces the session configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock sets the clock used for transition and capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
