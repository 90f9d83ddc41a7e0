package assets

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// translationsBundle is the wire shape of translations.json. Older
// sources send the bare {locale: {key: value}} map instead.
type translationsBundle struct {
	Locales  map[string]map[string]string `json:"locales"`
	Checksum string                       `json:"translationsChecksum"`
}

// extractTranslations reads the single translations.json entry of a
// translations_zip, decodes HTML entities in every value and hands the
// locales to the hub. A bundle whose checksum matches the stored one is
// skipped whole.
func (e *Extractor) extractTranslations(payload []byte) error {
	data, err := singleEntry(payload)
	if err != nil {
		return err
	}

	var bundle translationsBundle
	if err := json.Unmarshal(data, &bundle); err != nil || bundle.Locales == nil {
		// Backward compatibility: bare {locale: {...}} without wrapper.
		var bare map[string]map[string]string
		if bareErr := json.Unmarshal(data, &bare); bareErr != nil {
			return fmt.Errorf("unparseable translations.json: %w", bareErr)
		}
		bundle = translationsBundle{Locales: bare}
	}

	if bundle.Checksum != "" && bundle.Checksum == e.hub.TranslationsChecksum() {
		log.Debug().Str("checksum", bundle.Checksum).Msg("Translations checksum unchanged, skipping")
		return nil
	}

	if len(bundle.Locales) == 0 {
		log.Warn().Msg("Translations archive carried no locales")
		return nil
	}

	// Base locales first so regional variants merge onto fresh defaults.
	for locale, m := range bundle.Locales {
		if locale == baseOf(locale) {
			e.hub.SetTranslations(locale, decodeValues(m))
		}
	}
	for locale, m := range bundle.Locales {
		if locale != baseOf(locale) {
			e.hub.SetTranslations(locale, decodeValues(m))
		}
	}

	if bundle.Checksum != "" {
		e.hub.SetTranslationsChecksum(bundle.Checksum)
	}
	log.Info().Int("locales", len(bundle.Locales)).Msg("Translations ingested")
	return nil
}

func decodeValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = DecodeEntities(v)
	}
	return out
}

func baseOf(locale string) string {
	for i := 0; i < len(locale); i++ {
		if locale[i] == '-' || locale[i] == '_' {
			return locale[:i]
		}
	}
	return locale
}
