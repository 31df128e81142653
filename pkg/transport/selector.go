package transport

import (
	"fmt"
	"log/slog"
)

// Config contains options for adapter selection and initialization.
type Config struct {
	// MockAdapter, if non-nil, is returned directly by NewAdapter.
	// Used for test injection to bypass radio detection.
	MockAdapter Adapter

	// Logger receives adapter diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewAdapter creates the adapter used to talk to chips.
// Adapter selection follows this priority:
//  1. MockAdapter from config (test injection)
//  2. BLE radio if the binary was built with the ble tag and the host
//     adapter can be enabled
//
// Returns ErrUnsupported if no suitable adapter is available.
func NewAdapter(cfg *Config) (Adapter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Priority 1: Mock adapter for testing
	if cfg.MockAdapter != nil {
		return cfg.MockAdapter, nil
	}

	// Priority 2: BLE radio
	if BLEAvailable() {
		a, err := newBLEAdapter(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return a, nil
	}

	return nil, fmt.Errorf("%w: binary built without BLE support", ErrUnsupported)
}

// BLEAvailable reports whether this binary includes the BLE radio adapter.
func BLEAvailable() bool {
	return bleAvailable()
}
