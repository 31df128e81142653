package transport

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodeText encodes s as the UTF-8 bytes written to a characteristic.
func EncodeText(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidText)
	}
	return []byte(s), nil
}

// DecodeText decodes a characteristic value read from the chip. Firmware
// buffers are NUL padded, so trailing NUL bytes are dropped.
func DecodeText(b []byte) (string, error) {
	b = bytes.TrimRight(b, "\x00")
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidText)
	}
	return string(b), nil
}

// EncodeHex encodes binary data as 0x-prefixed lowercase hex text.
func EncodeHex(data []byte) []byte {
	return []byte(hexutil.Encode(data))
}

// DecodeHex decodes hex text read from the chip. The 0x prefix is optional,
// surrounding whitespace is ignored and digits are case-insensitive.
func DecodeHex(b []byte) ([]byte, error) {
	s, err := DecodeText(b)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidText)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	out, err := hexutil.Decode("0x" + strings.ToLower(s[2:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidText, err)
	}
	return out, nil
}
