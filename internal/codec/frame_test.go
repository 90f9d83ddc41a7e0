package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBinary_RoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	frame := EncodeBinary("translations_zip", payload)

	decoded, err := DecodeBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, "translations_zip", decoded.Type)
	assert.Equal(t, payload, decoded.Payload)
}

func TestDecodeBinary_TooShort(t *testing.T) {
	_, err := DecodeBinary([]byte{0x00, 0x01})
	require.Error(t, err)
	assert.Equal(t, ErrTooShort, KindOf(err))
}

func TestDecodeBinary_TypeLenExceedsFrame(t *testing.T) {
	// Claims a 100-byte type but carries only 2 bytes of body.
	frame := []byte{0x00, 0x00, 0x00, 0x64, 'h', 'i'}
	_, err := DecodeBinary(frame)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedType, KindOf(err))
}

func TestDecodeBinary_TypeLenOverCap(t *testing.T) {
	frame := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'x'}
	_, err := DecodeBinary(frame)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedType, KindOf(err))
}

func TestDecodeBinary_EmptyType(t *testing.T) {
	frame := EncodeBinary("", []byte("body"))
	decoded, err := DecodeBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, "", decoded.Type)

	_, known := CanonicalBinaryType(decoded.Type)
	assert.False(t, known)
}

func TestDecodeBinary_LegacyZipMagic(t *testing.T) {
	frame := []byte{0x50, 0x4B, 0x03, 0x04, 0x0A, 0x00}
	decoded, err := DecodeBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, BinaryFlagsZip, decoded.Type)
	assert.Equal(t, frame, decoded.Payload)
}

func TestCanonicalBinaryType_LegacyFlagsAlias(t *testing.T) {
	c, ok := CanonicalBinaryType("flags")
	require.True(t, ok)
	assert.Equal(t, BinaryFlagsZip, c)

	c, ok = CanonicalBinaryType("pictures_zip")
	require.True(t, ok)
	assert.Equal(t, BinaryPictures, c)

	_, ok = CanonicalBinaryType("bogus")
	assert.False(t, ok)
}
