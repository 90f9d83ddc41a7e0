package channel

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/barpath/tracker/internal/codec"
	"github.com/barpath/tracker/internal/hub"
)

// Extractor materializes binary asset frames. Satisfied by
// assets.Extractor.
type Extractor interface {
	Handle(frame *codec.BinaryFrame) error
}

// Capture records inbound textual frames when learning mode is on.
type Capture interface {
	CaptureText(label string, data []byte)
}

// Config for the source channel endpoint.
type Config struct {
	Path            string        `yaml:"path"`
	Secret          string        `yaml:"secret"`
	MinVersion      string        `yaml:"min_version"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	DatabaseZipWait time.Duration `yaml:"database_zip_wait"`
	FramesPerSecond float64       `yaml:"frames_per_second"`
	FrameBurst      int           `yaml:"frame_burst"`
}

func (c *Config) defaults() {
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.DatabaseZipWait == 0 {
		c.DatabaseZipWait = 5 * time.Second
	}
	if c.FramesPerSecond == 0 {
		c.FramesPerSecond = 200
	}
	if c.FrameBurst == 0 {
		c.FrameBurst = 400
	}
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024 * 1024 // database archives can be large
)

// Server accepts source channels on the configured path and routes
// frames to the hub or the extractor. Other paths are untouched so the
// tracker can co-host the query API and the upstream proxy.
type Server struct {
	cfg       Config
	hub       *hub.Hub
	extractor Extractor
	capture   Capture
	policy    codec.VersionPolicy
	upgrader  websocket.Upgrader

	protocolDisputed bool
}

// New creates the channel server. capture may be nil.
func New(cfg Config, h *hub.Hub, ex Extractor, capture Capture) *Server {
	cfg.defaults()
	return &Server{
		cfg:       cfg,
		hub:       h,
		extractor: ex,
		capture:   capture,
		policy:    codec.VersionPolicy{Minimum: cfg.MinVersion},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The source is a trusted controller on the local network;
			// browsers never speak this protocol.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Path returns the websocket endpoint path.
func (s *Server) Path() string { return s.cfg.Path }

// ServeHTTP upgrades one source channel and runs its reader until the
// connection dies. Frames are processed strictly in arrival order.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Channel upgrade failed")
		return
	}

	s.hub.SourceConnected()
	log.Info().Str("remote", r.RemoteAddr).Msg("Source channel connected")

	sess := &session{
		srv:     s,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.FramesPerSecond), s.cfg.FrameBurst),
	}
	sess.run(r.Context())

	conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("Source channel closed")

	// Displays switch to the waiting screen until the source returns.
	s.hub.Refresh()
}
