package hub

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// setTranslationsLocked stores one locale's map and rebuilds resolved
// views. Regional variants are merged over their base (base supplies
// defaults, regional overrides); storing a base re-resolves all of its
// regional children. Caller holds the write lock.
func (h *Hub) setTranslationsLocked(locale string, m map[string]string) {
	if len(m) == 0 {
		log.Warn().Str("locale", locale).Msg("Ignoring empty translation map")
		return
	}

	h.translationsRaw[locale] = copyMap(m)

	base := baseLocale(locale)
	if base != locale {
		h.translationsResolved[locale] = overlay(h.translationsRaw[base], m)
		return
	}

	h.translationsResolved[locale] = copyMap(m)
	for l, raw := range h.translationsRaw {
		if l != locale && baseLocale(l) == locale {
			h.translationsResolved[l] = overlay(m, raw)
		}
	}
}

// GetTranslations resolves a locale with the fallback chain
// exact -> base language -> "en" -> empty. The returned map is a
// published snapshot; callers must not mutate it.
func (h *Hub) GetTranslations(locale string) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if m, ok := h.translationsResolved[locale]; ok {
		return m
	}
	if m, ok := h.translationsResolved[baseLocale(locale)]; ok {
		return m
	}
	if locale != "en" && baseLocale(locale) != "en" {
		log.Warn().Str("locale", locale).Msg("No translations for locale, falling back to en")
	}
	if m, ok := h.translationsResolved["en"]; ok {
		return m
	}
	return map[string]string{}
}

// Locales returns the locales currently loaded.
func (h *Hub) Locales() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.translationsResolved))
	for l := range h.translationsResolved {
		out = append(out, l)
	}
	return out
}

// baseLocale strips the region from a BCP-47-like tag: fr-CA -> fr.
func baseLocale(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}

// overlay returns base with over written on top. Both inputs stay
// untouched; translations are copy-on-write at the locale level.
func overlay(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
