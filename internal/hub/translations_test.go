package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barpath/tracker/internal/cache"
)

func newTranslationsHub() *Hub {
	return New(cache.NewEpochRegistry(), Config{}, nil)
}

func TestRegionalVariantMergesWithBase(t *testing.T) {
	h := newTranslationsHub()
	h.SetTranslations("fr", map[string]string{"Snatch": "Arraché", "Total": "Total"})
	h.SetTranslations("fr-CA", map[string]string{"Snatch": "Arraché (CA)"})

	frCA := h.GetTranslations("fr-CA")
	assert.Equal(t, "Arraché (CA)", frCA["Snatch"])
	// Base supplies the keys the regional map lacks.
	assert.Equal(t, "Total", frCA["Total"])

	// Regional keys are a superset of the base keys.
	fr := h.GetTranslations("fr")
	for k := range fr {
		_, ok := frCA[k]
		require.True(t, ok, "regional missing base key %s", k)
	}
}

func TestBaseUpdateRefreshesRegionalChildren(t *testing.T) {
	h := newTranslationsHub()
	h.SetTranslations("fr-CA", map[string]string{"Snatch": "Arraché (CA)"})
	h.SetTranslations("fr", map[string]string{"Snatch": "Arraché", "CleanJerk": "Épaulé-jeté"})

	frCA := h.GetTranslations("fr-CA")
	assert.Equal(t, "Arraché (CA)", frCA["Snatch"], "regional override survives base update")
	assert.Equal(t, "Épaulé-jeté", frCA["CleanJerk"], "new base keys propagate to regional children")
}

func TestFallbackChain(t *testing.T) {
	h := newTranslationsHub()
	h.SetTranslations("en", map[string]string{"Snatch": "Snatch"})
	h.SetTranslations("de", map[string]string{"Snatch": "Reißen"})

	// Exact match.
	assert.Equal(t, "Reißen", h.GetTranslations("de")["Snatch"])
	// Regional falls back to base.
	assert.Equal(t, "Reißen", h.GetTranslations("de-AT")["Snatch"])
	// Unknown falls back to en.
	assert.Equal(t, "Snatch", h.GetTranslations("pt")["Snatch"])
}

func TestFallbackToEmptyMap(t *testing.T) {
	h := newTranslationsHub()
	m := h.GetTranslations("xx")
	require.NotNil(t, m)
	assert.Empty(t, m)
}

func TestEmptyMapIsNoOp(t *testing.T) {
	h := newTranslationsHub()
	h.SetTranslations("en", map[string]string{})
	assert.Empty(t, h.Locales())
}

func TestSnapshotIsReferenceStable(t *testing.T) {
	h := newTranslationsHub()
	h.SetTranslations("en", map[string]string{"a": "1"})
	snap := h.GetTranslations("en")
	h.SetTranslations("en", map[string]string{"a": "2"})
	// Earlier snapshot is untouched by the new publish.
	assert.Equal(t, "1", snap["a"])
	assert.Equal(t, "2", h.GetTranslations("en")["a"])
}
