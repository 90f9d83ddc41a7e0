// Package learning captures inbound textual frames to disk so new
// message shapes from a controller can be studied offline.
package learning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Capture writes one file per textual frame under the samples
// directory. Failures are logged and never propagate; capture is a
// diagnostic aid, not a pipeline stage.
type Capture struct {
	dir string
}

// New creates a capture writer rooted at dir (usually "samples").
func New(dir string) *Capture {
	return &Capture{dir: dir}
}

// CaptureText stores one frame as
// <dir>/<ISO8601 local, no colons>-<label>.json. Nanosecond precision
// keeps frames arriving back-to-back apart.
func (c *Capture) CaptureText(label string, data []byte) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("Cannot create samples directory")
		return
	}

	ts := strings.ReplaceAll(time.Now().Format("2006-01-02T15:04:05.000000000"), ":", "")
	name := fmt.Sprintf("%s-%s.json", ts, sanitize(label))

	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Sample capture failed")
	}
}

// sanitize keeps labels filesystem-safe.
func sanitize(label string) string {
	if label == "" {
		return "frame"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, label)
}
