package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("controller says hi"))
	}))
	defer upstream.Close()

	u, err := New(upstream.URL)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	u.ServeHTTP(rec, httptest.NewRequest("GET", "/upstream/anything", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "controller says hi", rec.Body.String())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer upstream.Close()

	u, err := New(upstream.URL)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		u.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
		assert.Equal(t, 500, rec.Code)
	}

	// Breaker is open now: requests fail fast with 503.
	rec := httptest.NewRecorder()
	u.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestInvalidURL(t *testing.T) {
	_, err := New("://bad")
	assert.Error(t, err)
}
