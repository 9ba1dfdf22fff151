package matching

import (
	"net/url"
	"strings"

	"github.com/sells-group/catalog-enrich/internal/manufacturer"
)

// ExtractNumericSKU returns the numeric part of a supplier SKU, such as
// "2538" for "LF-2538". ok is false when the SKU does not match the
// profile's convention.
func ExtractNumericSKU(p *manufacturer.Profile, sku string) (numeric string, ok bool) {
	m := p.SKURegexp().FindStringSubmatch(strings.TrimSpace(sku))
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// BuildSearchURL substitutes the URL-encoded numeric SKU into the
// profile's search template.
func BuildSearchURL(p *manufacturer.Profile, numeric string) string {
	return strings.ReplaceAll(p.SearchURLTemplate, manufacturer.SKUPlaceholder, url.QueryEscape(numeric))
}

// numericPart reduces an on-page SKU to its digits for comparison.
func numericPart(p *manufacturer.Profile, sku string) string {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ""
	}
	if n, ok := ExtractNumericSKU(p, sku); ok {
		return n
	}
	if isDigits(sku) {
		return sku
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
