package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/broker"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/plugins"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultServerConfig returns the defaults used when the config file is
// silent.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "0.0.0.0",
		Port:        8096,
		ReadTimeout: 10 * time.Second,
		// No write timeout: the event stream holds its response open.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the tracker's HTTP surface: the source channel endpoint,
// the display event stream, the scoreboard query API, status, metrics
// and the static asset tree.
type Server struct {
	router   *mux.Router
	server   *http.Server
	config   ServerConfig
	hub      *hub.Hub
	broker   *broker.Broker
	registry *plugins.Registry
	metrics  *MetricsRegistry
}

// Deps are the collaborators the server routes to. Channel and Proxy
// are plain handlers so the channel server and the upstream proxy stay
// independent packages.
type Deps struct {
	Hub         *hub.Hub
	Broker      *broker.Broker
	Registry    *plugins.Registry
	Metrics     *MetricsRegistry
	Channel     http.Handler
	ChannelPath string
	Proxy       http.Handler
	AssetRoot   string
}

// NewServer wires routes and middleware.
func NewServer(config ServerConfig, deps Deps) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:   router,
		config:   config,
		hub:      deps.Hub,
		broker:   deps.Broker,
		registry: deps.Registry,
		metrics:  deps.Metrics,
	}
	s.setupRoutes(deps)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes(deps Deps) {
	// The source channel path bypasses the API middleware: it is a
	// websocket upgrade, not a JSON request.
	s.router.Handle(deps.ChannelPath, deps.Channel)

	if deps.Proxy != nil {
		s.router.PathPrefix("/upstream/").Handler(deps.Proxy)
	}

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.requestLoggingMiddleware)
	api.Use(s.corsMiddleware)

	api.HandleFunc("/scoreboard", s.handleScoreboard).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")

	if deps.AssetRoot != "" {
		s.router.PathPrefix("/assets/").Handler(
			http.StripPrefix("/assets/", http.FileServer(http.Dir(deps.AssetRoot))))
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// requestIDMiddleware tags each request for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("took", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("API request")
	})
}

// corsMiddleware lets any display origin read the API; the tracker
// serves scoreboards across the venue network.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for active
// requests to finish or ctx to expire. The caller shuts the broker down
// after it returns.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests and co-hosting.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.server.Addr
}

// responseWrapper captures status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working behind the logging wrapper.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
