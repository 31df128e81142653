package transport

import (
	"context"
	"errors"
	"time"
)

// AdapterType identifies an Adapter implementation.
type AdapterType string

const (
	AdapterBLE  AdapterType = "ble"
	AdapterMock AdapterType = "mock"
)

// PeripheralHandle is the opaque identity of one physical chip. ID is stable
// for the lifetime of the peripheral (a BLE address or platform UUID); Label is
// the advertised local name, for display only.
type PeripheralHandle struct {
	ID    string
	Label string
}

// String returns a human-readable form of the handle.
func (h PeripheralHandle) String() string {
	if h.Label == "" {
		return h.ID
	}
	return h.Label + " (" + h.ID + ")"
}

// IsZero reports whether the handle identifies no peripheral.
func (h PeripheralHandle) IsZero() bool {
	return h.ID == ""
}

// ServiceFilter scopes discovery to peripherals advertising a service.
type ServiceFilter struct {
	// ServiceID is the 16-bit service UUID that must be advertised.
	ServiceID uint16

	// AcceptAll disables service filtering. Development only: it lets any
	// nearby peripheral be selected.
	AcceptAll bool
}

// DefaultServiceFilter returns a filter scoped to the chip service.
func DefaultServiceFilter() ServiceFilter {
	return ServiceFilter{ServiceID: ServiceID}
}

// Validate rejects unscoped filters that were not explicitly flagged as debug.
func (f ServiceFilter) Validate() error {
	if f.ServiceID == 0 && !f.AcceptAll {
		return errors.New("service filter requires a service ID unless AcceptAll is set")
	}
	return nil
}

// Matches reports whether an advertisement listing serviceIDs passes the filter.
func (f ServiceFilter) Matches(serviceIDs []uint16) bool {
	if f.AcceptAll {
		return true
	}
	for _, id := range serviceIDs {
		if id == f.ServiceID {
			return true
		}
	}
	return false
}

// Advertisement is a single sighting of a peripheral during a scan.
type Advertisement struct {
	Handle     PeripheralHandle
	ServiceIDs []uint16
	RSSI       int16
	SeenAt     time.Time
}

// Adapter owns discovery, connection and GATT access for chip peripherals.
//
// Operations block the calling goroutine and honour ctx. Write must not return
// before the peripheral acknowledged the write.
type Adapter interface {
	// Discover selects one peripheral matching filter.
	Discover(ctx context.Context, filter ServiceFilter) (PeripheralHandle, error)

	// Connect opens the radio session. It is a no-op for a connected handle.
	Connect(ctx context.Context, h PeripheralHandle) error

	// ReadCharacteristic reads the current value of a characteristic.
	ReadCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID) ([]byte, error)

	// WriteCharacteristic writes data with response.
	WriteCharacteristic(ctx context.Context, h PeripheralHandle, id CharacteristicID, data []byte) error

	// Subscribe starts notifications for a characteristic.
	Subscribe(ctx context.Context, h PeripheralHandle, id CharacteristicID) (*Subscription, error)

	// Disconnect tears down the radio session. It always succeeds locally.
	Disconnect(h PeripheralHandle) error

	// Disconnected returns a channel that is closed when the connection to h
	// drops, whether locally or by the peer. For a handle that is not
	// connected the returned channel is already closed.
	Disconnected(h PeripheralHandle) <-chan struct{}

	// Type returns the adapter implementation type.
	Type() AdapterType
}

// Scanner passively enumerates advertising peripherals.
type Scanner interface {
	// Scan reports advertisements matching filter to fn until ctx is done.
	// fn may be called many times for the same peripheral.
	Scan(ctx context.Context, filter ServiceFilter, fn func(Advertisement)) error
}

// closedCh is returned by Disconnected for handles without a live connection.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
