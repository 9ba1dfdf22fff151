package matching

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// SearchResults are the candidate product pages found on a search page.
type SearchResults struct {
	SearchURL string
	Links     []string
	Count     int
	// Strategy names the extraction tier that produced Links.
	Strategy string
	Method   model.AttemptMethod
	// ResultCount is what confidence scoring sees; guessed links count as
	// no results.
	ResultCount int
	Raw         json.RawMessage
	CreditsUsed int
}

// SearchProducts fetches searchURL through the gateway and extracts
// candidate product links. Gateway failures return *SearchError. Zero
// links is not an error here.
func (m *Matcher) SearchProducts(ctx context.Context, searchURL string) (*SearchResults, error) {
	res, err := m.gateway.Scrape(ctx, searchURL, m.cfg.SearchOptions)
	if err != nil {
		return nil, &SearchError{URL: searchURL, Err: err}
	}
	if !res.Success {
		return nil, &SearchError{
			URL:   searchURL,
			Err:   eris.Errorf("search page unavailable: %s", res.ErrorMessage),
			Trace: &Trace{SearchURL: searchURL, Method: model.MethodSearchFirstResult, CreditsUsed: res.CreditsUsed},
		}
	}

	links, strategy, method := extractLinks(&linkSource{
		html:      res.Content,
		text:      res.Markdown,
		base:      m.base,
		paths:     m.paths,
		selectors: m.profile.Selectors.SearchResults,
		hints:     m.profile.ProductNameHints,
	})

	out := &SearchResults{
		SearchURL:   searchURL,
		Links:       links,
		Count:       len(links),
		Strategy:    strategy,
		Method:      method,
		ResultCount: len(links),
		Raw:         res.Raw,
		CreditsUsed: res.CreditsUsed,
	}
	if method == model.MethodFallback {
		out.ResultCount = 0
	}

	zap.L().Debug("matching: search results",
		zap.String("url", searchURL),
		zap.String("strategy", strategy),
		zap.Int("count", out.Count),
	)
	return out, nil
}
