package assets

import "strings"

// Translation values arrive with a handful of HTML entities baked in by
// the authoring tools. They are decoded once, before caching; decoding
// an already-decoded string is a no-op.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&ndash;", "–",
	"&mdash;", "—",
	"&hellip;", "…",
	"&copy;", "©",
	"&reg;", "®",
	"&trade;", "™",
	"&quot;", `"`,
	"&apos;", "'",
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

// DecodeEntities replaces known HTML entities with their Unicode
// equivalents in a single pass, so "&amp;nbsp;" yields the literal
// "&nbsp;" rather than a non-breaking space.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityReplacer.Replace(s)
}
