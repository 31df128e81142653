package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr bool
	}{
		{name: "prefixed lowercase", input: []byte("0x0a0b"), want: []byte{0x0a, 0x0b}},
		{name: "prefixed uppercase digits", input: []byte("0x0A0B"), want: []byte{0x0a, 0x0b}},
		{name: "uppercase prefix", input: []byte("0X0a0b"), want: []byte{0x0a, 0x0b}},
		{name: "no prefix", input: []byte("0a0b"), want: []byte{0x0a, 0x0b}},
		{name: "nul padded", input: []byte("0x0a0b\x00\x00"), want: []byte{0x0a, 0x0b}},
		{name: "whitespace", input: []byte(" 0x0a0b\n"), want: []byte{0x0a, 0x0b}},
		{name: "empty", input: nil, wantErr: true},
		{name: "odd length", input: []byte("0xabc"), wantErr: true},
		{name: "not hex", input: []byte("0xzz"), wantErr: true},
		{name: "invalid utf8", input: []byte{0xff, 0xfe}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidText), "error should wrap ErrInvalidText")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeHex_RoundTrip(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	encoded := EncodeHex(data)
	assert.Equal(t, "0xdeadbeef", string(encoded))

	decoded, err := DecodeHex(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestText(t *testing.T) {
	b, err := EncodeText("chip-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("chip-1"), b)

	_, err = EncodeText(string([]byte{0xff}))
	assert.ErrorIs(t, err, ErrInvalidText)

	s, err := DecodeText([]byte("hello\x00"))
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}
