package channel

import "github.com/barpath/tracker/internal/codec"

// Close codes in the policy range (>=4000).
const (
	CloseUnauthenticated = 4001
	CloseVersionMismatch = 4400
)

// Reply is the envelope returned for every inbound frame.
type Reply struct {
	Status  int                    `json:"status"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	Missing []string               `json:"missing,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cached  bool                   `json:"cached,omitempty"`
	Retry   bool                   `json:"retry,omitempty"`
}

func okReply(message string) Reply {
	return Reply{Status: 200, Message: message}
}

func cachedReply(message string) Reply {
	return Reply{Status: 200, Message: message, Cached: true}
}

func retryReply(message string) Reply {
	return Reply{Status: 202, Message: message, Retry: true}
}

func preconditionsReply(missing []string) Reply {
	return Reply{Status: 428, Message: "Preconditions missing", Missing: missing}
}

func badFrameReply(err error) Reply {
	r := Reply{Status: 400, Error: err.Error(), Reason: string(codec.KindOf(err))}
	if fe, ok := err.(*codec.FrameError); ok && fe.Detail == codec.ErrInvalidEnvelope {
		r.Error = codec.ErrInvalidEnvelope
	}
	return r
}

func versionReply(received, minimum string) Reply {
	return Reply{
		Status: 400,
		Error:  "Protocol version check failed",
		Reason: string(codec.ErrVersionMismatch),
		Details: map[string]interface{}{
			"received": received,
			"minimum":  minimum,
		},
	}
}

func unauthenticatedReply() Reply {
	return Reply{Status: 401, Error: "Unauthenticated", Reason: "bad_update_key"}
}

func internalReply(reason string) Reply {
	return Reply{Status: 500, Error: "Internal error", Reason: reason}
}
