// Package proxy forwards display requests that the tracker does not
// answer itself to the upstream competition controller.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Upstream is a reverse proxy to the controller with a circuit breaker
// in front, so a dead controller fails displays fast instead of letting
// requests pile up.
type Upstream struct {
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker
}

// New creates the proxy for the controller base URL.
func New(rawURL string) (*Upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", rawURL, err)
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Upstream breaker state change")
		},
	})

	return &Upstream{proxy: rp, breaker: breaker}, nil
}

// ServeHTTP forwards one request through the breaker.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, err := u.breaker.Execute(func() (interface{}, error) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		u.proxy.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream returned %d", rec.status)
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
