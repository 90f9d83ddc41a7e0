package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Binary frame wire layout: [u32 big-endian typeLen][typeBytes][payload].
const (
	headerLen  = 4
	maxTypeLen = 10 * 1024 * 1024
)

// zipMagic is the zip local file header. Legacy sources send a bare zip
// with no type prefix; those frames are accepted as flags_zip.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Known binary frame types.
const (
	BinaryFlagsZip        = "flags_zip"
	BinaryFlagsLegacy     = "flags"
	BinaryPictures        = "pictures"
	BinaryPicturesZip     = "pictures_zip"
	BinaryStyles          = "styles"
	BinaryTranslationsZip = "translations_zip"
	BinaryDatabaseZip     = "database_zip"
)

// BinaryFrame is a decoded binary frame from the source channel.
type BinaryFrame struct {
	Type    string
	Payload []byte
}

// knownBinaryTypes maps wire type names to their canonical form.
// "flags" is a legacy alias for "flags_zip".
var knownBinaryTypes = map[string]string{
	BinaryFlagsZip:        BinaryFlagsZip,
	BinaryFlagsLegacy:     BinaryFlagsZip,
	BinaryPictures:        BinaryPictures,
	BinaryPicturesZip:     BinaryPictures,
	BinaryStyles:          BinaryStyles,
	BinaryTranslationsZip: BinaryTranslationsZip,
	BinaryDatabaseZip:     BinaryDatabaseZip,
}

// CanonicalBinaryType resolves a wire type name to its canonical form.
// Returns false for types the tracker does not understand.
func CanonicalBinaryType(name string) (string, bool) {
	c, ok := knownBinaryTypes[name]
	return c, ok
}

// IsZipPayload reports whether data starts with the zip local file header.
func IsZipPayload(data []byte) bool {
	return len(data) >= len(zipMagic) && bytes.Equal(data[:len(zipMagic)], zipMagic)
}

// DecodeBinary splits a binary frame into its type and payload.
//
// A frame that opens with the zip magic and has no plausible type prefix
// is a legacy flags archive: the whole frame is the payload.
func DecodeBinary(frame []byte) (*BinaryFrame, error) {
	if IsZipPayload(frame) {
		return &BinaryFrame{Type: BinaryFlagsZip, Payload: frame}, nil
	}

	if len(frame) < headerLen {
		return nil, &FrameError{Kind: ErrTooShort, Detail: fmt.Sprintf("frame is %d bytes, need at least %d", len(frame), headerLen)}
	}

	typeLen := binary.BigEndian.Uint32(frame[:headerLen])
	if typeLen > maxTypeLen {
		return nil, &FrameError{Kind: ErrMalformedType, Detail: fmt.Sprintf("type length %d exceeds %d", typeLen, maxTypeLen)}
	}
	if int(typeLen) > len(frame)-headerLen {
		return nil, &FrameError{Kind: ErrMalformedType, Detail: fmt.Sprintf("type length %d exceeds frame body %d", typeLen, len(frame)-headerLen)}
	}

	typeBytes := frame[headerLen : headerLen+int(typeLen)]
	if !utf8.Valid(typeBytes) {
		return nil, &FrameError{Kind: ErrMalformedType, Detail: "type bytes are not valid UTF-8"}
	}

	return &BinaryFrame{
		Type:    string(typeBytes),
		Payload: frame[headerLen+int(typeLen):],
	}, nil
}

// EncodeBinary is the inverse of DecodeBinary.
func EncodeBinary(frameType string, payload []byte) []byte {
	out := make([]byte, headerLen+len(frameType)+len(payload))
	binary.BigEndian.PutUint32(out[:headerLen], uint32(len(frameType)))
	copy(out[headerLen:], frameType)
	copy(out[headerLen+len(frameType):], payload)
	return out
}
