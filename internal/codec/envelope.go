package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Known text frame types. Anything else decodes as KindOther and is
// routed to the generic handler.
type TextKind string

const (
	KindDatabase TextKind = "database"
	KindUpdate   TextKind = "update"
	KindTimer    TextKind = "timer"
	KindDecision TextKind = "decision"
	KindOther    TextKind = "other"
)

// ErrInvalidEnvelope is the exact message returned to senders whose
// frame is missing type or payload.
const ErrInvalidEnvelope = "Invalid message format. Expected {version, type, payload}"

// TextFrame is a decoded {version, type, payload} envelope. Payload is
// kept raw; each handler unmarshals the shape it needs. Name preserves
// the wire type for KindOther frames.
type TextFrame struct {
	Version string
	Kind    TextKind
	Name    string
	Payload json.RawMessage
}

type rawEnvelope struct {
	Version string          `json:"version"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeText parses a textual frame into a tagged envelope. Decode
// happens once at the boundary; handlers never re-parse the envelope.
func DecodeText(data []byte) (*TextFrame, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FrameError{Kind: ErrJSONParse, Detail: err.Error()}
	}
	if raw.Type == "" || len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil, &FrameError{Kind: ErrJSONParse, Detail: ErrInvalidEnvelope}
	}

	frame := &TextFrame{
		Version: raw.Version,
		Name:    raw.Type,
		Payload: raw.Payload,
	}
	switch TextKind(strings.ToLower(raw.Type)) {
	case KindDatabase:
		frame.Kind = KindDatabase
	case KindUpdate:
		frame.Kind = KindUpdate
	case KindTimer:
		frame.Kind = KindTimer
	case KindDecision:
		frame.Kind = KindDecision
	default:
		frame.Kind = KindOther
	}
	return frame, nil
}

// VersionPolicy rejects frames below a configured minimum protocol
// version.
type VersionPolicy struct {
	Minimum string
}

// Check returns a version_mismatch error when v does not satisfy the
// configured minimum. An empty minimum accepts everything.
func (p VersionPolicy) Check(v string) error {
	if p.Minimum == "" {
		return nil
	}
	got, err := parseVersion(v)
	if err != nil {
		return &FrameError{Kind: ErrVersionMismatch, Detail: fmt.Sprintf("unparseable version %q", v)}
	}
	min, err := parseVersion(p.Minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum version %q: %w", p.Minimum, err)
	}
	for i := 0; i < 3; i++ {
		if got[i] > min[i] {
			return nil
		}
		if got[i] < min[i] {
			return &FrameError{Kind: ErrVersionMismatch, Detail: fmt.Sprintf("version %s below minimum %s", v, p.Minimum)}
		}
	}
	return nil
}

func parseVersion(v string) ([3]int, error) {
	var out [3]int
	// Tolerate prerelease/build suffixes on the patch field.
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return out, fmt.Errorf("expected major.minor.patch, got %q", v)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, fmt.Errorf("field %d of %q: %w", i, v, err)
		}
		out[i] = n
	}
	return out, nil
}
