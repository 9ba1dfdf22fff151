package matching

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// titleFromURL turns the last path segment into a display name:
// "/products/aria-pendant_lg" becomes "Aria Pendant Lg".
func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" || seg == "" {
		return ""
	}
	seg = strings.NewReplacer("-", " ", "_", " ").Replace(seg)
	words := strings.Fields(seg)
	if len(words) == 0 || (len(words) == 1 && isDigits(words[0])) {
		return ""
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// slugify lowercases s, folds accents and joins alphanumeric runs with
// hyphens: "Café Sconce  II" becomes "cafe-sconce-ii".
func slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}
