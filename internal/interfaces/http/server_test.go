package http

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barpath/tracker/internal/broker"
	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
	"github.com/barpath/tracker/internal/plugins"
)

var (
	metricsOnce sync.Once
	metricsReg  *MetricsRegistry
)

// Prometheus collectors register globally; tests share one registry.
func testMetrics() *MetricsRegistry {
	metricsOnce.Do(func() { metricsReg = NewMetricsRegistry() })
	return metricsReg
}

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	epochs := cache.NewEpochRegistry()
	h := hub.New(epochs, hub.Config{}, nil)
	b := broker.New(h, broker.Config{Heartbeat: time.Hour})
	registry := plugins.NewRegistry(&plugins.Context{Hub: h, Epochs: epochs})
	registry.Register(plugins.Results())
	registry.Register(plugins.AttemptBoard())

	s := NewServer(DefaultServerConfig(), Deps{
		Hub:         h,
		Broker:      b,
		Registry:    registry,
		Metrics:     testMetrics(),
		Channel:     http.NotFoundHandler(),
		ChannelPath: "/ws",
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, h
}

func loadHub(t *testing.T, h *hub.Hub) {
	t.Helper()
	_, err := h.IngestDatabase(&model.Database{
		Checksum:    "C1",
		Competition: model.Competition{Name: "Invitational"},
		Athletes:    []model.AthleteRecord{{Key: "k1", FullName: "DOE, Jane", TotalRank: 1}},
	})
	require.NoError(t, err)
	h.SetTranslations("en", map[string]string{"Total": "Total"})
	h.SetAssetLoaded(hub.AssetFlags)
}

func TestStatusEndpoint(t *testing.T) {
	ts, h := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.DatabaseLoaded)

	loadHub(t, h)
	resp2, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&status))
	assert.True(t, status.DatabaseLoaded)
	assert.True(t, status.FlagsLoaded)
}

func TestScoreboardQuery(t *testing.T) {
	ts, h := newTestServer(t)
	loadHub(t, h)

	resp, err := http.Get(ts.URL + "/api/scoreboard?type=results&platform=A")
	require.NoError(t, err)
	defer resp.Body.Close()

	var qr queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&qr))
	require.True(t, qr.Success, qr.Error)
	assert.Equal(t, "Invitational", qr.Data["competitionName"])
	assert.Contains(t, qr.Data, "sessionStatus")
}

func TestScoreboardQueryErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/scoreboard?platform=A")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/scoreboard?type=results&platform=A")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var qr queryResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&qr))
	assert.False(t, qr.Success)
	assert.NotEmpty(t, qr.Error, "database missing surfaces as a query error")
}

func TestEventStreamDeliversInitAndLiveEvents(t *testing.T) {
	ts, h := newTestServer(t)
	loadHub(t, h)

	req, err := http.NewRequest("GET", ts.URL+"/api/events?platform=A", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var m map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
				return m
			}
		}
	}

	first := readEvent()
	assert.Equal(t, hub.EventInit, first["type"], "first event is the synthetic init")

	_, err = h.IngestUpdate("A", []byte(`{"fop":"A","fopState":"CURRENT_ATHLETE_DISPLAYED"}`), hub.KindUpdate)
	require.NoError(t, err)

	ev := readEvent()
	assert.Equal(t, hub.EventFopUpdate, ev["type"])
	assert.Equal(t, "A", ev["platform"])
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}
