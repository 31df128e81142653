// Package transport provides the radio abstraction used to talk to chip-bearing
// peripherals over BLE GATT.
//
// A chip exposes one primary service (0x5791) with a fixed characteristic
// table: two readable identity characteristics, two writable challenge inputs,
// and two signature outputs that support both reads and notifications. The
// table is a compile-time constant; see [ChipService].
//
// # Adapter Implementations
//
// Two adapters are available:
//
//   - BLE: tinygo.org/x/bluetooth on the host radio (BlueZ, CoreBluetooth,
//     WinRT). Compiled only with the "ble" build tag.
//
//   - Mock: in-memory peripherals backed by [MockChip], a simulated chip
//     firmware that signs challenges with a secp256k1 key. Used in tests and
//     by the CLI's --simulate mode.
//
// # Codec
//
// Every payload crossing the radio link is UTF-8 text. Binary values are
// carried as 0x-prefixed hex strings; see [EncodeHex] and [DecodeHex].
//
// # Usage
//
//	adapter, err := transport.NewAdapter(cfg)
//	h, err := adapter.Discover(ctx, transport.DefaultServiceFilter())
//	err = adapter.Connect(ctx, h)
//	sub, err := adapter.Subscribe(ctx, h, transport.CharOutputSignature)
//	err = adapter.WriteCharacteristic(ctx, h, transport.CharInputMessage, payload)
//	sig := <-sub.C()
package transport
