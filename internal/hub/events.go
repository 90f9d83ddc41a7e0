package hub

import (
	"encoding/json"
	"time"
)

// Event types fanned out to display subscribers.
const (
	EventFopUpdate              = "fop_update"
	EventTimer                  = "timer"
	EventDecision               = "decision"
	EventCompetitionInitialized = "competition_initialized"
	EventHubReady               = "hub_ready_broadcast"
	EventWaiting                = "waiting"
	EventProtocolError          = "protocol_error"
	EventProtocolOK             = "protocol_ok"
	EventInit                   = "init"
)

// Event is one hub emission. Platform is empty for global events.
// Fields carries the event-specific payload.
type Event struct {
	Type      string
	Platform  string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// MarshalJSON flattens Fields into the top-level object next to type,
// platform and timestamp, which is the wire shape displays consume.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	if e.Platform != "" {
		out["platform"] = e.Platform
	}
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// Sink receives hub events. The broker registers one; tests register
// their own.
type Sink func(Event)
