package metadata

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a title into a URL-safe slug: diacritics stripped, lowered,
// and non-alphanumeric runs collapsed into single hyphens.
func Slugify(title string) string {
	stripped, _, err := transform.String(diacriticStripper, title)
	if err != nil {
		stripped = title
	}

	var b strings.Builder
	b.Grow(len(stripped))
	lastHyphen := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
