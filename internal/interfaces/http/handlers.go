package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/hub"
)

// queryResponse is the /api/scoreboard envelope.
type queryResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// reservedQueryParams are consumed by the API itself; everything else
// is passed through as plugin options.
var reservedQueryParams = map[string]struct{}{"type": {}, "platform": {}}

// handleScoreboard answers GET /api/scoreboard?type=&platform=&...
// The data shape is plugin-specific; the endpoint is plugin-agnostic.
func (s *Server) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	pluginType := r.URL.Query().Get("type")
	platform := r.URL.Query().Get("platform")
	if pluginType == "" {
		writeJSON(w, http.StatusBadRequest, queryResponse{Error: "missing type parameter"})
		return
	}

	opts := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if _, reserved := reservedQueryParams[k]; !reserved && len(vs) > 0 {
			opts[k] = vs[0]
		}
	}

	start := time.Now()
	data, err := s.registry.Compute(pluginType, platform, opts)
	s.metrics.QueryDuration.WithLabelValues(pluginType).Observe(time.Since(start).Seconds())
	if err != nil {
		writeJSON(w, http.StatusOK, queryResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Success: true, Data: data})
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	DatabaseLoaded     bool         `json:"databaseLoaded"`
	TranslationsLoaded bool         `json:"translationsLoaded"`
	FlagsLoaded        bool         `json:"flagsLoaded"`
	PicturesLoaded     bool         `json:"picturesLoaded"`
	StylesLoaded       bool         `json:"stylesLoaded"`
	Subscribers        int          `json:"subscribers"`
	Platforms          []string     `json:"platforms"`
	Counters           hub.Counters `json:"counters"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		DatabaseLoaded:     s.hub.DatabaseState() != nil,
		TranslationsLoaded: len(s.hub.Locales()) > 0,
		FlagsLoaded:        s.hub.AssetLoaded(hub.AssetFlags),
		PicturesLoaded:     s.hub.AssetLoaded(hub.AssetPictures),
		StylesLoaded:       s.hub.AssetLoaded(hub.AssetStyles),
		Subscribers:        s.broker.SubscriberCount(),
		Platforms:          s.hub.Platforms(),
		Counters:           s.hub.CountersSnapshot(),
	})
}

// handleEvents is the display subscription channel: a server-sent event
// stream filtered by ?platform= and ?types=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	platform := r.URL.Query().Get("platform")
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	subscriberID := uuid.New().String()[:8]
	ctx := r.Context()

	// Writes happen on the broker's per-subscriber writer; errors there
	// remove the subscriber. Context cancellation unsubscribes below.
	send := func(payload []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if payload == nil {
			_, err = w.Write([]byte(": keepalive\n\n"))
		} else {
			_, err = w.Write(append(append([]byte("data: "), payload...), '\n', '\n'))
		}
		if err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	unsubscribe := s.broker.Subscribe(send, subscriberID, platform, types)
	defer unsubscribe()

	s.metrics.Subscribers.Set(float64(s.broker.SubscriberCount()))
	log.Debug().Str("subscriber", subscriberID).Str("platform", platform).Msg("Event stream opened")

	<-ctx.Done()
	s.metrics.Subscribers.Set(float64(s.broker.SubscriberCount()))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Response write failed")
	}
}
