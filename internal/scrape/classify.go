package scrape

import (
	"regexp"
	"strings"
)

// NotFoundMessage is the ErrorMessage set on results classified as not found.
const NotFoundMessage = "404 Page Not Found"

// MinContentLength is the shortest trimmed content treated as a real page.
const MinContentLength = 100

var status404Re = regexp.MustCompile(`\b404\b`)

var notFoundPhrases = []string{
	"page not found",
	"page you requested does not exist",
	"page you were looking for",
	"this page does not exist",
	"no longer available",
	"couldn't find the page",
	"could not find the page",
}

var notFoundLanguage = []string{
	"not found",
	"doesn't exist",
	"does not exist",
	"can't be found",
	"cannot be found",
}

// DetectNotFound reports whether rendered content looks like a missing page.
// softPhrases are site-specific phrases that only count when the content
// also uses not-found language.
func DetectNotFound(content string, softPhrases []string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < MinContentLength {
		return true
	}

	lower := strings.ToLower(trimmed)
	if status404Re.MatchString(lower) {
		return true
	}
	for _, p := range notFoundPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	if !containsAny(lower, notFoundLanguage) {
		return false
	}
	for _, p := range softPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
)

// DetectBlock checks rendered content for an anti-bot interstitial that the
// provider returned instead of the page.
func DetectBlock(content string) (bool, BlockType) {
	lower := strings.ToLower(content)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}
	if strings.Contains(lower, "captcha") && strings.Contains(lower, "verify") {
		return true, BlockCaptcha
	}
	return false, BlockNone
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
