// This file has no build tags so errors are available in all build configurations.
package transport

import "errors"

// Discovery errors.
var (
	ErrNoDeviceSelected = errors.New("transport: no device selected")
	ErrPermissionDenied = errors.New("transport: bluetooth permission denied")
	ErrUnsupported      = errors.New("transport: bluetooth radio not available")
)

// Connection and GATT errors.
var (
	ErrConnectionFailed         = errors.New("transport: connection failed")
	ErrAlreadyConnected         = errors.New("transport: peripheral already connected")
	ErrNotConnected             = errors.New("transport: peripheral not connected")
	ErrServiceNotFound          = errors.New("transport: chip service not found")
	ErrCharacteristicNotFound   = errors.New("transport: characteristic not found")
	ErrReadFailed               = errors.New("transport: characteristic read failed")
	ErrWriteFailed              = errors.New("transport: characteristic write failed")
	ErrNotificationsUnsupported = errors.New("transport: notifications not supported")
)

// ErrInvalidText is returned when a characteristic value is not valid UTF-8 or
// not the expected hex encoding.
var ErrInvalidText = errors.New("transport: invalid characteristic text")

// IsDeviceSelectionError reports whether err means no peripheral was chosen,
// either because none matched or because the user declined.
func IsDeviceSelectionError(err error) bool {
	return errors.Is(err, ErrNoDeviceSelected) || errors.Is(err, ErrPermissionDenied)
}
