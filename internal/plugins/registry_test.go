package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	reg := cache.NewEpochRegistry()
	h := hub.New(reg, hub.Config{}, nil)
	return &Context{Hub: h, Epochs: reg}
}

func loadDB(t *testing.T, ctx *Context) {
	t.Helper()
	_, err := ctx.Hub.IngestDatabase(&model.Database{
		Checksum:    "C1",
		Competition: model.Competition{Name: "Provincials"},
		Athletes: []model.AthleteRecord{
			{Key: "k1", FullName: "AAA", SessionName: "M1", TotalRank: 2, StartNumber: 1},
			{Key: "k2", FullName: "BBB", SessionName: "M1", TotalRank: 1, StartNumber: 2},
			{Key: "k3", FullName: "CCC", SessionName: "M2", TotalRank: 1, StartNumber: 3},
		},
	})
	require.NoError(t, err)
	ctx.Hub.SetTranslations("en", map[string]string{"Total": "Total"})
	ctx.Hub.SetAssetLoaded(hub.AssetFlags)
}

func TestComputeRequiresDatabase(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry(ctx)
	r.Register(Results())

	_, err := r.Compute("results", "A", nil)
	assert.Error(t, err)
}

func TestResultsRankedForCurrentGroup(t *testing.T) {
	ctx := testContext(t)
	loadDB(t, ctx)
	_, err := ctx.Hub.IngestUpdate("A", []byte(`{"fop":"A","groupName":"M1","fopState":"CURRENT_ATHLETE_DISPLAYED"}`), hub.KindUpdate)
	require.NoError(t, err)

	r := NewRegistry(ctx)
	r.Register(Results())

	data, err := r.Compute("results", "A", nil)
	require.NoError(t, err)
	assert.Equal(t, "Provincials", data["competitionName"])
	assert.Equal(t, "M1", data["groupName"])

	rows := data["athletes"].([]interface{})
	require.Len(t, rows, 2, "only the current group's athletes")
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "BBB", first["fullName"], "rank 1 leads")
}

func TestCacheHitRecomputesVolatileFields(t *testing.T) {
	ctx := testContext(t)
	loadDB(t, ctx)
	r := NewRegistry(ctx)

	calls := 0
	r.Register(Descriptor{
		Type: "probe",
		Compute: func(c *Context, platform string, opts map[string]string) (*cache.Payload, error) {
			calls++
			return &cache.Payload{Data: map[string]interface{}{"static": "x"}}, nil
		},
	})

	_, err := r.Compute("probe", "A", nil)
	require.NoError(t, err)
	data, err := r.Compute("probe", "A", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second identical query is a cache hit")
	assert.Contains(t, data, "sessionStatus", "volatile fields present on hits")
}

func TestStateVersionChangeMissesCache(t *testing.T) {
	ctx := testContext(t)
	loadDB(t, ctx)
	r := NewRegistry(ctx)

	calls := 0
	r.Register(Descriptor{
		Type: "probe",
		Compute: func(c *Context, platform string, opts map[string]string) (*cache.Payload, error) {
			calls++
			return &cache.Payload{Data: map[string]interface{}{}}, nil
		},
	})

	_, err := r.Compute("probe", "A", nil)
	require.NoError(t, err)

	_, err = ctx.Hub.IngestUpdate("A", []byte(`{"fop":"A","weight":101}`), hub.KindUpdate)
	require.NoError(t, err)

	_, err = r.Compute("probe", "A", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "state version moved, cache key must move with it")
}

func TestAttemptBoardNoSession(t *testing.T) {
	ctx := testContext(t)
	loadDB(t, ctx)
	r := NewRegistry(ctx)
	r.Register(AttemptBoard())

	data, err := r.Compute("attemptboard", "B", nil)
	require.NoError(t, err)
	assert.Equal(t, true, data["noSession"], "INACTIVE platform renders the no-session view")
}

func TestAttemptBoardCurrentAthlete(t *testing.T) {
	ctx := testContext(t)
	loadDB(t, ctx)
	_, err := ctx.Hub.IngestUpdate("A", []byte(`{"fop":"A","fopState":"CURRENT_ATHLETE_DISPLAYED","curAthlete":"k2","weight":87,"attemptNumber":2,"liftType":"Snatch"}`), hub.KindUpdate)
	require.NoError(t, err)

	r := NewRegistry(ctx)
	r.Register(AttemptBoard())

	data, err := r.Compute("attemptboard", "A", nil)
	require.NoError(t, err)
	athlete := data["athlete"].(map[string]interface{})
	assert.Equal(t, "BBB", athlete["fullName"])
	assert.Equal(t, 87, data["weight"])
}

func TestUnknownPluginType(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry(ctx)
	_, err := r.Compute("nope", "A", nil)
	assert.Error(t, err)
}
