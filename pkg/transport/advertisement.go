package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Advertising data types carrying service UUID lists.
const (
	adIncomplete16  = 0x02
	adComplete16    = 0x03
	adIncomplete128 = 0x06
	adComplete128   = 0x07
)

// bluetoothBase is the Bluetooth base UUID in advertising byte order with
// the 16-bit component (bytes 12 and 13) zeroed.
var bluetoothBase = [16]byte{
	0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Locate scans until a peripheral with the given ID advertises, and returns
// its handle. IDs compare case-insensitively. The scan is unscoped so that
// peripherals picked in any-device mode can be found again.
func Locate(ctx context.Context, s Scanner, id string) (PeripheralHandle, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		found PeripheralHandle
		once  sync.Once
	)
	err := s.Scan(scanCtx, ServiceFilter{AcceptAll: true}, func(adv Advertisement) {
		if !strings.EqualFold(adv.Handle.ID, id) {
			return
		}
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
			return PeripheralHandle{}, fmt.Errorf("%w: %s not in range: %w", ErrNoDeviceSelected, id, ctx.Err())
		}
		return PeripheralHandle{}, fmt.Errorf("%w: %s not in range", ErrNoDeviceSelected, id)
	}
	return found, nil
}

// parseServiceIDs extracts the 16-bit service IDs listed in a raw
// advertising payload. 128-bit entries count when they sit on the Bluetooth
// base UUID. Malformed trailing structures are ignored.
func parseServiceIDs(raw []byte) []uint16 {
	var ids []uint16
	for len(raw) > 1 {
		n := int(raw[0])
		if n == 0 || n >= len(raw) {
			break
		}
		kind, data := raw[1], raw[2:n+1]
		switch kind {
		case adIncomplete16, adComplete16:
			for i := 0; i+1 < len(data); i += 2 {
				ids = appendServiceID(ids, uint16(data[i])|uint16(data[i+1])<<8)
			}
		case adIncomplete128, adComplete128:
			for i := 0; i+16 <= len(data); i += 16 {
				if id, ok := base16(data[i : i+16]); ok {
					ids = appendServiceID(ids, id)
				}
			}
		}
		raw = raw[n+1:]
	}
	return ids
}

func base16(u []byte) (uint16, bool) {
	for i, b := range bluetoothBase {
		if i == 12 || i == 13 {
			continue
		}
		if u[i] != b {
			return 0, false
		}
	}
	return uint16(u[12]) | uint16(u[13])<<8, true
}

// appendServiceID appends id unless it is already listed.
func appendServiceID(ids []uint16, id uint16) []uint16 {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
