//go:build !ble

package transport

import (
	"log/slog"
)

func bleAvailable() bool {
	return false
}

func newBLEAdapter(_ *slog.Logger) (Adapter, error) {
	return nil, ErrUnsupported
}
