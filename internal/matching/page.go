package matching

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// ProductPageData is what a product page yields.
type ProductPageData struct {
	Name        string
	Description string
	// SKU is the manufacturer SKU shown on the page, empty when absent.
	SKU       string
	ImageURLs []string
	Images    []model.ImageMetadata
	SourceURL string
}

// maxHeadingLines bounds the line heuristic for names.
const maxHeadingLines = 10

var boilerplatePrefixes = []string{"skip", "quick", "post"}

type pageSource struct {
	profile *manufacturer.Profile
	pageURL string
	base    *url.URL
	doc     *goquery.Document
	text    string
	html    string
}

// ParseProductPage extracts structured fields from a rendered product page.
func ParseProductPage(p *manufacturer.Profile, pageURL, html, markdown string) *ProductPageData {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(p.BaseURL)
	}

	src := &pageSource{profile: p, pageURL: pageURL, base: base, text: markdown, html: html}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		src.doc = doc
	}
	if src.text == "" && src.doc != nil {
		src.text = src.doc.Text()
	}

	images := extractImages(src)
	data := &ProductPageData{
		Name:        firstNonEmpty(src, nameFromSelectors, nameFromURL, nameFromLines),
		Description: firstNonEmpty(src, descriptionFromSelectors),
		SKU:         firstNonEmpty(src, skuFromSelectors, skuFromContent),
		Images:      images,
		SourceURL:   pageURL,
	}
	for _, img := range images {
		data.ImageURLs = append(data.ImageURLs, img.URL)
	}
	return data
}

type fieldStrategy func(src *pageSource) string

func firstNonEmpty(src *pageSource, strategies ...fieldStrategy) string {
	for _, fn := range strategies {
		if v := strings.TrimSpace(fn(src)); v != "" {
			return v
		}
	}
	return ""
}

func nameFromSelectors(src *pageSource) string {
	return selectorText(src.doc, src.profile.Selectors.Name)
}

func nameFromURL(src *pageSource) string {
	return titleFromURL(src.pageURL)
}

// nameFromLines takes the first plausible heading-like line near the top
// of the content.
func nameFromLines(src *pageSource) string {
	lines := strings.Split(src.text, "\n")
	if len(lines) > maxHeadingLines {
		lines = lines[:maxHeadingLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#*> "))
		if len(line) < 3 || len(line) > 150 {
			continue
		}
		if strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") || strings.Contains(line, "http") {
			continue
		}
		if hasBoilerplatePrefix(line) {
			continue
		}
		return line
	}
	return ""
}

func hasBoilerplatePrefix(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range boilerplatePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func descriptionFromSelectors(src *pageSource) string {
	return selectorText(src.doc, src.profile.Selectors.Description)
}

func skuFromSelectors(src *pageSource) string {
	raw := selectorText(src.doc, src.profile.Selectors.SKU)
	if raw == "" {
		return ""
	}
	if m := src.profile.PageSKURegexp().FindString(raw); m != "" {
		return m
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(raw, "SKU:"), "SKU"))
}

func skuFromContent(src *pageSource) string {
	re := src.profile.PageSKURegexp()
	if m := re.FindString(src.text); m != "" {
		return m
	}
	return re.FindString(src.html)
}

// selectorText returns the collapsed text of the first selector that
// matches a non-empty element.
func selectorText(doc *goquery.Document, selectors []string) string {
	if doc == nil {
		return ""
	}
	for _, sel := range selectors {
		var text string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = strings.Join(strings.Fields(s.Text()), " ")
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}
