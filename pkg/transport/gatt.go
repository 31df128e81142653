package transport

import "fmt"

// ServiceID is the 16-bit UUID of the chip's primary GATT service.
const ServiceID uint16 = 0x5791

// CharacteristicID is a 16-bit GATT characteristic UUID within the chip service.
type CharacteristicID uint16

// Characteristic IDs exposed by chip firmware.
const (
	CharPublicKey          CharacteristicID = 0xA001
	CharChipAddress        CharacteristicID = 0xA002
	CharInputMessage       CharacteristicID = 0xB001
	CharInputHashedMessage CharacteristicID = 0xB002
	CharOutputSignature    CharacteristicID = 0xC001
	CharOutputSignedHash   CharacteristicID = 0xC002
)

// String returns the UUID in 0xNNNN form.
func (id CharacteristicID) String() string {
	return fmt.Sprintf("0x%04X", uint16(id))
}

// Direction is a bit set of the operations a characteristic supports from
// the host's point of view.
type Direction uint8

const (
	DirRead Direction = 1 << iota
	DirWrite
	DirNotify
)

// Role names the semantic purpose of a characteristic.
type Role string

const (
	RolePublicKey          Role = "public-key"
	RoleChipAddress        Role = "chip-address"
	RoleInputMessage       Role = "input-message"
	RoleInputHashedMessage Role = "input-hashed-message"
	RoleOutputSignature    Role = "output-signature"
	RoleOutputSignedHash   Role = "output-signed-hash"
)

// Characteristic describes one entry of the chip's characteristic table.
type Characteristic struct {
	ID        CharacteristicID
	Role      Role
	Direction Direction
}

// CanRead reports whether the host may read the characteristic.
func (c Characteristic) CanRead() bool { return c.Direction&DirRead != 0 }

// CanWrite reports whether the host may write the characteristic.
func (c Characteristic) CanWrite() bool { return c.Direction&DirWrite != 0 }

// CanNotify reports whether the chip pushes notifications for the characteristic.
func (c Characteristic) CanNotify() bool { return c.Direction&DirNotify != 0 }

// ServiceDescriptor is the static wire contract with chip firmware.
type ServiceDescriptor struct {
	ID              uint16
	Characteristics []Characteristic
}

// ChipService is the characteristic table every chip exposes. It is never
// discovered at runtime.
var ChipService = ServiceDescriptor{
	ID: ServiceID,
	Characteristics: []Characteristic{
		{ID: CharPublicKey, Role: RolePublicKey, Direction: DirRead},
		{ID: CharChipAddress, Role: RoleChipAddress, Direction: DirRead},
		{ID: CharInputMessage, Role: RoleInputMessage, Direction: DirWrite},
		{ID: CharInputHashedMessage, Role: RoleInputHashedMessage, Direction: DirWrite},
		{ID: CharOutputSignature, Role: RoleOutputSignature, Direction: DirRead | DirNotify},
		{ID: CharOutputSignedHash, Role: RoleOutputSignedHash, Direction: DirRead | DirNotify},
	},
}

// Characteristic looks up a characteristic by ID.
func (d ServiceDescriptor) Characteristic(id CharacteristicID) (Characteristic, bool) {
	for _, c := range d.Characteristics {
		if c.ID == id {
			return c, true
		}
	}
	return Characteristic{}, false
}

// ByRole looks up a characteristic by semantic role.
func (d ServiceDescriptor) ByRole(role Role) (Characteristic, bool) {
	for _, c := range d.Characteristics {
		if c.Role == role {
			return c, true
		}
	}
	return Characteristic{}, false
}

// IDs returns the characteristic IDs in table order.
func (d ServiceDescriptor) IDs() []CharacteristicID {
	ids := make([]CharacteristicID, len(d.Characteristics))
	for i, c := range d.Characteristics {
		ids[i] = c.ID
	}
	return ids
}

// checkDirection returns an error wrapping base if the characteristic does not
// exist in the table or does not support dir.
func checkDirection(id CharacteristicID, dir Direction, base error) error {
	c, ok := ChipService.Characteristic(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCharacteristicNotFound, id)
	}
	if c.Direction&dir == 0 {
		return fmt.Errorf("%w: %s (%s) does not support this operation", base, id, c.Role)
	}
	return nil
}
