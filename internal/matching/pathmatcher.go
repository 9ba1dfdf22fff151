package matching

import (
	"net/url"
	"path"
	"strings"
)

// PathMatcher accepts URLs whose path matches one of its glob patterns.
// A trailing "/*" also matches deeper paths, so "/products/*" accepts
// "/products/aria/black".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher. Patterns are case-insensitive.
func NewPathMatcher(patterns []string) *PathMatcher {
	lower := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lower = append(lower, p)
		}
	}
	return &PathMatcher{patterns: lower}
}

// Matches reports whether rawURL's path matches any pattern. An empty
// matcher accepts every URL.
func (m *PathMatcher) Matches(rawURL string) bool {
	if len(m.patterns) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(strings.ToLower(u.Path), "/")
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(urlPath, prefix+"/") && len(urlPath) > len(prefix)+1
	}
	return false
}
