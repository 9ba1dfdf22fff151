package matching

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/catalog-enrich/internal/model"
)

var (
	markdownLinkRe   = regexp.MustCompile(`\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)
	absoluteURLRe    = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	schemeRelativeRe = regexp.MustCompile(`(?:^|[\s("'=])(//[A-Za-z0-9][^\s<>"'()\[\]]*)`)
	relativeURLRe    = regexp.MustCompile(`(?:^|[\s("'=])(/[A-Za-z0-9][^\s<>"'()\[\]]*)`)

	resultMarkerRe    = regexp.MustCompile(`(?i)\bshow(?:ing)?\s+(\d+)\s+results?\b`)
	sectionBoundaryRe = regexp.MustCompile(`(?im)^[\s#>*_|-]*(?:filters?|sort(?:\s+by)?|product\s+type)\b`)
)

// linkSource is the search page being mined for product links.
type linkSource struct {
	html      string
	text      string
	base      *url.URL
	paths     *PathMatcher
	selectors []string
	hints     []string
}

// linkStrategy is one tier of link extraction. decisive stops the chain
// even when no links were found.
type linkStrategy struct {
	name   string
	method model.AttemptMethod
	fn     func(src *linkSource) (links []string, decisive bool)
}

var linkStrategies = []linkStrategy{
	{name: "selectors", method: model.MethodSearchFirstResult, fn: selectorLinks},
	{name: "result_marker", method: model.MethodSearchFirstResult, fn: markerLinks},
	{name: "broad_patterns", method: model.MethodSearchFirstResult, fn: broadLinks},
	{name: "name_hints", method: model.MethodFallback, fn: hintLinks},
}

// extractLinks runs the strategies in order and returns the first
// non-empty result.
func extractLinks(src *linkSource) (links []string, strategy string, method model.AttemptMethod) {
	for _, s := range linkStrategies {
		found, decisive := s.fn(src)
		if len(found) > 0 || decisive {
			return found, s.name, s.method
		}
	}
	return nil, "", model.MethodSearchFirstResult
}

func selectorLinks(src *linkSource) ([]string, bool) {
	if strings.TrimSpace(src.html) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.html))
	if err != nil {
		return nil, false
	}

	for _, sel := range src.selectors {
		set := newLinkSet(src)
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				set.add(href)
			}
		})
		if len(set.links) > 0 {
			return set.links, false
		}
	}
	return nil, false
}

// markerLinks reads the "Show N results" count and only mines the text
// between the marker and the next filter or sort heading.
func markerLinks(src *linkSource) ([]string, bool) {
	text := src.text
	if text == "" {
		text = src.html
	}
	loc := resultMarkerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}
	expected, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil {
		return nil, false
	}
	if expected == 0 {
		return nil, true
	}

	span := text[loc[1]:]
	if b := sectionBoundaryRe.FindStringIndex(span); b != nil {
		span = span[:b[0]]
	}

	links := layeredLinks(src, span)
	if len(links) > expected {
		links = links[:expected]
	}
	return links, false
}

func broadLinks(src *linkSource) ([]string, bool) {
	for _, content := range []string{src.text, src.html} {
		if links := layeredLinks(src, content); len(links) > 0 {
			return links, false
		}
	}
	return nil, false
}

// hintLinks guesses a product URL from known product names that appear in
// the page.
func hintLinks(src *linkSource) ([]string, bool) {
	lower := strings.ToLower(src.text + "\n" + src.html)
	set := newLinkSet(src)
	for _, hint := range src.hints {
		if hint == "" || !strings.Contains(lower, strings.ToLower(hint)) {
			continue
		}
		if slug := slugify(hint); slug != "" {
			set.add("/products/" + slug)
		}
	}
	return set.links, false
}

// layeredLinks tries markdown links, then absolute URLs, then relative
// URLs, returning the first layer that yields product links.
func layeredLinks(src *linkSource, content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	set := newLinkSet(src)
	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		set.add(m[1])
	}
	if len(set.links) > 0 {
		return set.links
	}

	for _, m := range absoluteURLRe.FindAllString(content, -1) {
		set.add(m)
	}
	if len(set.links) > 0 {
		return set.links
	}

	for _, re := range []*regexp.Regexp{schemeRelativeRe, relativeURLRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			set.add(m[1])
		}
	}
	return set.links
}

// linkSet collects absolute, de-duplicated product links in first-seen
// order.
type linkSet struct {
	src   *linkSource
	seen  map[string]bool
	links []string
}

func newLinkSet(src *linkSource) *linkSet {
	return &linkSet{src: src, seen: make(map[string]bool)}
}

func (s *linkSet) add(raw string) {
	link, ok := s.src.normalize(raw)
	if !ok || s.seen[link] {
		return
	}
	s.seen[link] = true
	s.links = append(s.links, link)
}

// normalize absolutizes raw against the site base, drops query and
// fragment, and keeps only same-site product paths.
func (src *linkSource) normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), ".,;:!*"))
	lower := strings.ToLower(raw)
	if raw == "" || strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}

	u, err := src.base.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	if !sameSite(u.Host, src.base.Host) {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	abs := u.String()
	if !src.paths.Matches(abs) {
		return "", false
	}
	return abs, true
}

func sameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
