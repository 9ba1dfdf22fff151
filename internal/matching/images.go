package matching

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/catalog-enrich/internal/model"
)

var markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?`)

var placementKeywords = []struct {
	keyword   string
	placement model.ImagePlacement
}{
	{"thumb", model.ImagePlacementThumbnail},
	{"main", model.ImagePlacementMain},
	{"featured", model.ImagePlacementMain},
	{"primary", model.ImagePlacementMain},
	{"hero", model.ImagePlacementMain},
	{"detail", model.ImagePlacementDetail},
	{"zoom", model.ImagePlacementDetail},
	{"gallery", model.ImagePlacementGallery},
	{"slide", model.ImagePlacementGallery},
}

var (
	largeHints = []string{"large", "original", "master", "2048x", "1024x", "high"}
	smallHints = []string{"small", "thumb", "icon", "_100x", "lowres"}
)

// extractImages tries each image selector in order and falls back to
// markdown image syntax.
func extractImages(src *pageSource) []model.ImageMetadata {
	if src.doc != nil {
		for _, sel := range src.profile.Selectors.Images {
			if images := imagesForSelector(src, sel); len(images) > 0 {
				return images
			}
		}
	}
	return markdownImages(src)
}

func imagesForSelector(src *pageSource, sel string) []model.ImageMetadata {
	seen := make(map[string]bool)
	var out []model.ImageMetadata

	src.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		imgs := s
		if goquery.NodeName(s) != "img" {
			imgs = s.Find("img")
		}
		imgs.Each(func(_ int, img *goquery.Selection) {
			abs, ok := src.imageURL(imageSrc(img))
			if !ok || seen[abs] {
				return
			}
			seen[abs] = true

			classes := img.AttrOr("class", "") + " " + img.Parent().AttrOr("class", "")
			out = append(out, newImageMetadata(abs, img.AttrOr("alt", ""), classes,
				atoi(img.AttrOr("width", "")), atoi(img.AttrOr("height", ""))))
		})
	})
	return out
}

func markdownImages(src *pageSource) []model.ImageMetadata {
	seen := make(map[string]bool)
	var out []model.ImageMetadata
	for _, m := range markdownImageRe.FindAllStringSubmatch(src.text, -1) {
		abs, ok := src.imageURL(m[2])
		if !ok || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, newImageMetadata(abs, strings.TrimSpace(m[1]), "", 0, 0))
	}
	return out
}

func imageSrc(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	for _, attr := range []string{"srcset", "data-srcset"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			if f := strings.Fields(strings.Split(v, ",")[0]); len(f) > 0 {
				return f[0]
			}
		}
	}
	return ""
}

// imageURL absolutizes raw and applies the include and exclude keywords.
func (src *pageSource) imageURL(raw string) (string, bool) {
	if raw == "" || src.base == nil {
		return "", false
	}
	u, err := src.base.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	u.Fragment = ""
	abs := u.String()

	lower := strings.ToLower(abs)
	for _, kw := range src.profile.ImageExclude {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "", false
		}
	}
	if len(src.profile.ImageInclude) == 0 {
		return abs, true
	}
	for _, kw := range src.profile.ImageInclude {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return abs, true
		}
	}
	return "", false
}

func newImageMetadata(imgURL, alt, classes string, width, height int) model.ImageMetadata {
	return model.ImageMetadata{
		URL:       imgURL,
		AltText:   alt,
		Placement: estimatePlacement(classes, imgURL),
		Width:     width,
		Height:    height,
		Quality:   imageQuality(imgURL, width, height),
	}
}

// estimatePlacement checks class names first, then the URL path.
func estimatePlacement(classes, imgURL string) model.ImagePlacement {
	urlPath := imgURL
	if u, err := url.Parse(imgURL); err == nil {
		urlPath = u.Path
	}
	for _, s := range []string{strings.ToLower(classes), strings.ToLower(urlPath)} {
		for _, pk := range placementKeywords {
			if strings.Contains(s, pk.keyword) {
				return pk.placement
			}
		}
	}
	return model.ImagePlacementGallery
}

// imageQuality scores download priority from 0 to 100, starting at 50.
func imageQuality(imgURL string, width, height int) int {
	score := 50

	switch dim := max(width, height); {
	case dim >= 1000:
		score += 20
	case dim >= 500:
		score += 10
	case dim > 0 && dim < 200:
		score -= 20
	}

	lower := strings.ToLower(imgURL)
	clean := lower
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	switch path.Ext(clean) {
	case ".webp":
		score += 10
	case ".jpg", ".jpeg", ".png":
		score += 5
	case ".gif":
		score -= 10
	case ".svg":
		score -= 20
	}

	if containsAny(lower, largeHints) {
		score += 20
	}
	if containsAny(lower, smallHints) {
		score -= 20
	}
	return clamp(score, 0, 100)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
