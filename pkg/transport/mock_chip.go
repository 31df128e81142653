package transport

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Challenge sizes accepted by chip firmware.
const (
	mockMessageSize       = 20 + 32
	mockHashedMessageSize = 32
)

// MockChip simulates chip firmware behind the chip service. A write to the
// input-message characteristic is keccak-hashed, wrapped as an Ethereum signed
// message and signed with the chip key; the result appears on the signature
// outputs and is pushed to subscribers.
type MockChip struct {
	handle    PeripheralHandle
	key       *ecdsa.PrivateKey
	services  []uint16
	notify    bool
	silent    bool
	signDelay time.Duration
	fixedSig  []byte

	mu        sync.Mutex
	values    map[CharacteristicID][]byte
	lastInput []byte
	lastChar  CharacteristicID
	signCount int
	publish   func(id CharacteristicID, value []byte)
}

// MockChipOption configures a MockChip.
type MockChipOption func(*MockChip)

// WithChipKey sets the chip signing key. By default a random key is generated.
func WithChipKey(key *ecdsa.PrivateKey) MockChipOption {
	return func(c *MockChip) {
		c.key = key
	}
}

// WithFixedSignature makes the chip answer every challenge with sig.
func WithFixedSignature(sig []byte) MockChipOption {
	return func(c *MockChip) {
		c.fixedSig = append([]byte(nil), sig...)
	}
}

// WithSignDelay simulates signing latency after a challenge is written.
func WithSignDelay(d time.Duration) MockChipOption {
	return func(c *MockChip) {
		c.signDelay = d
	}
}

// WithoutNotifications simulates firmware that only supports polling reads of
// the output characteristics.
func WithoutNotifications() MockChipOption {
	return func(c *MockChip) {
		c.notify = false
	}
}

// WithSilentChip makes the chip accept challenges but never produce a signature.
func WithSilentChip() MockChipOption {
	return func(c *MockChip) {
		c.silent = true
	}
}

// WithAdvertisedServices overrides the service IDs the chip advertises.
func WithAdvertisedServices(ids ...uint16) MockChipOption {
	return func(c *MockChip) {
		c.services = append([]uint16(nil), ids...)
	}
}

// NewMockChip creates a simulated chip with the given identity.
func NewMockChip(id, label string, opts ...MockChipOption) (*MockChip, error) {
	c := &MockChip{
		handle:   PeripheralHandle{ID: id, Label: label},
		services: []uint16{ServiceID},
		notify:   true,
		values:   make(map[CharacteristicID][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.key == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate chip key: %w", err)
		}
		c.key = key
	}

	c.values[CharPublicKey] = EncodeHex(crypto.FromECDSAPub(&c.key.PublicKey))
	c.values[CharChipAddress] = []byte(c.Address().Hex())
	return c, nil
}

// Handle returns the chip's peripheral handle.
func (c *MockChip) Handle() PeripheralHandle {
	return c.handle
}

// Address returns the chip's Ethereum address.
func (c *MockChip) Address() common.Address {
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// LastInput returns the decoded bytes of the last challenge written, and the
// characteristic it was written to.
func (c *MockChip) LastInput() ([]byte, CharacteristicID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.lastInput...), c.lastChar
}

// SignCount returns how many signatures the chip has produced.
func (c *MockChip) SignCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signCount
}

// SupportsNotifications reports whether the chip pushes output notifications.
func (c *MockChip) SupportsNotifications() bool {
	return c.notify
}

func (c *MockChip) advertisement() Advertisement {
	return Advertisement{
		Handle:     c.handle,
		ServiceIDs: append([]uint16(nil), c.services...),
		RSSI:       -50,
		SeenAt:     time.Now(),
	}
}

func (c *MockChip) attach(publish func(id CharacteristicID, value []byte)) {
	c.mu.Lock()
	c.publish = publish
	c.mu.Unlock()
}

func (c *MockChip) read(id CharacteristicID) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.values[id]...)
}

// write handles a challenge written by the host.
func (c *MockChip) write(id CharacteristicID, data []byte) error {
	input, err := DecodeHex(data)
	if err != nil {
		return fmt.Errorf("%w: chip rejected input: %v", ErrWriteFailed, err)
	}

	var digest []byte
	switch id {
	case CharInputMessage:
		if len(input) != mockMessageSize {
			return fmt.Errorf("%w: chip expects %d byte message, got %d", ErrWriteFailed, mockMessageSize, len(input))
		}
		digest = crypto.Keccak256(input)
	case CharInputHashedMessage:
		if len(input) != mockHashedMessageSize {
			return fmt.Errorf("%w: chip expects %d byte hash, got %d", ErrWriteFailed, mockHashedMessageSize, len(input))
		}
		digest = input
	default:
		return fmt.Errorf("%w: %s is not an input", ErrWriteFailed, id)
	}

	c.mu.Lock()
	c.lastInput = input
	c.lastChar = id
	delete(c.values, CharOutputSignature)
	delete(c.values, CharOutputSignedHash)
	c.mu.Unlock()

	if c.silent {
		return nil
	}
	if c.signDelay > 0 {
		time.AfterFunc(c.signDelay, func() { c.sign(digest) })
		return nil
	}
	c.sign(digest)
	return nil
}

func (c *MockChip) sign(digest []byte) {
	signedHash := accounts.TextHash(digest)

	sig := c.fixedSig
	if sig == nil {
		var err error
		sig, err = crypto.Sign(signedHash, c.key)
		if err != nil {
			return
		}
		sig[crypto.RecoveryIDOffset] += 27
	}

	sigText := EncodeHex(sig)
	hashText := EncodeHex(signedHash)

	c.mu.Lock()
	c.values[CharOutputSignedHash] = hashText
	c.values[CharOutputSignature] = sigText
	c.signCount++
	publish := c.publish
	c.mu.Unlock()

	if publish != nil {
		publish(CharOutputSignedHash, hashText)
		publish(CharOutputSignature, sigText)
	}
}
