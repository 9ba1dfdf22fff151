package matching

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/scrape"
)

const (
	searchURL1142 = "https://www.lf-lighting.example/search?q=1142&type=product"
	candidate1    = "https://www.lf-lighting.example/products/aria-pendant-lf1142"
	candidate2    = "https://www.lf-lighting.example/products/aria-pendant-xl-lf1143"
)

func newTestMatcher(t *testing.T, gw scrape.Gateway) *Matcher {
	t.Helper()
	m, err := New(gw, manufacturer.Default(), Config{})
	require.NoError(t, err)
	return m
}

func searchPage() *scrape.Result {
	return &scrape.Result{
		URL:         searchURL1142,
		Success:     true,
		Content:     searchHTML,
		Raw:         json.RawMessage(`{"page":"search"}`),
		CreditsUsed: 1,
		StatusCode:  http.StatusOK,
	}
}

func productPage(url string) *scrape.Result {
	return &scrape.Result{
		URL:         url,
		Success:     true,
		Content:     productHTML,
		Raw:         json.RawMessage(`{"page":"product"}`),
		CreditsUsed: 1,
		StatusCode:  http.StatusOK,
	}
}

func notFoundPage(url string) *scrape.Result {
	return &scrape.Result{
		URL:          url,
		Success:      false,
		CreditsUsed:  1,
		StatusCode:   http.StatusNotFound,
		ErrorMessage: scrape.NotFoundMessage,
	}
}

func TestNew_Defaults(t *testing.T) {
	m := newTestMatcher(t, &mockGateway{})
	assert.Equal(t, DefaultScores(), m.cfg.Scores)
	assert.Equal(t, DefaultMaxCandidates, m.cfg.MaxCandidates)
}

func TestNew_RejectsUncompiledProfile(t *testing.T) {
	_, err := New(&mockGateway{}, &manufacturer.Profile{BaseURL: "https://x.example"}, Config{})
	require.Error(t, err)

	_, err = New(&mockGateway{}, nil, Config{})
	require.Error(t, err)
}

func TestMatchProduct_FirstCandidate(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(productPage(candidate1), nil).Once()

	m := newTestMatcher(t, gw)
	data, err := m.MatchProduct(context.Background(), model.Product{ID: "p-1", SupplierSKU: "LF1142"})
	require.NoError(t, err)

	assert.Equal(t, searchURL1142, data.SearchURL)
	assert.Equal(t, candidate1, data.ProductURL)
	assert.Equal(t, "Aria Pendant", data.Name)
	assert.Equal(t, "LF1142", data.PageSKU)
	assert.Equal(t, 100, data.ConfidenceScore)
	assert.Equal(t, model.MethodSearchFirstResult, data.Method)
	assert.Equal(t, 2, data.CreditsUsed)
	assert.Len(t, data.ImageURLs, 2)
	assert.Contains(t, data.RawResponses, "search")
	assert.Contains(t, data.RawResponses, "product")

	gw.AssertExpectations(t)
	gw.AssertNotCalled(t, "Scrape", mock.Anything, candidate2, mock.Anything)
}

func TestMatchProduct_SKUMismatchScoresResultTier(t *testing.T) {
	gw := &mockGateway{}
	page := productPage(candidate1)
	page.Content = `<h1 class="product__title">Aria Pendant</h1><span class="product__sku">LF9001</span>`
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(page, nil).Once()

	data, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF-1142"})
	require.NoError(t, err)
	assert.Equal(t, 90, data.ConfidenceScore)
}

func TestMatchProduct_NotFoundFallsThroughToNextCandidate(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(notFoundPage(candidate1), nil).Once()
	gw.On("Scrape", mock.Anything, candidate2, mock.Anything).Return(productPage(candidate2), nil).Once()

	data, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	require.NoError(t, err)

	assert.Equal(t, candidate2, data.ProductURL)
	assert.Equal(t, 3, data.CreditsUsed)
	gw.AssertExpectations(t)
}

func TestMatchProduct_AllCandidatesFail(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	gw.On("Scrape", mock.Anything, candidate2, mock.Anything).Return(notFoundPage(candidate2), nil).Once()

	_, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	require.Error(t, err)

	var se *ScrapingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, candidate1, se.URL)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, IsMatchError(err))

	trace := TraceOf(err)
	require.NotNil(t, trace)
	assert.Equal(t, searchURL1142, trace.SearchURL)
	assert.Equal(t, 2, trace.CreditsUsed)
}

func TestMatchProduct_ZeroResults(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(&scrape.Result{
		URL:         searchURL1142,
		Success:     true,
		Markdown:    "Show 0 results\n\n## Popular\n[Aria Pendant](/products/aria-pendant)",
		CreditsUsed: 1,
	}, nil).Once()

	_, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	require.Error(t, err)

	var se *SearchError
	require.ErrorAs(t, err, &se)
	assert.Nil(t, se.Err)
	assert.Contains(t, err.Error(), "no candidate products")
	require.NotNil(t, se.Trace)
	assert.Equal(t, 1, se.Trace.CreditsUsed)
	gw.AssertNumberOfCalls(t, "Scrape", 1)
}

func TestMatchProduct_SearchGatewayError(t *testing.T) {
	gw := &mockGateway{}
	cause := &scrape.RateLimitError{Err: errors.New("429")}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(nil, cause).Once()

	_, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	require.Error(t, err)

	var se *SearchError
	require.ErrorAs(t, err, &se)
	assert.True(t, scrape.IsRateLimited(err))
	require.NotNil(t, se.Trace)
	assert.Equal(t, searchURL1142, se.Trace.SearchURL)
}

func TestMatchProduct_UnsuccessfulSearchPage(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(&scrape.Result{
		URL:          searchURL1142,
		Success:      false,
		ErrorMessage: "blocked by bot protection (cloudflare)",
		CreditsUsed:  1,
	}, nil).Once()

	_, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	var se *SearchError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "cloudflare")
	assert.Equal(t, 1, se.Trace.CreditsUsed)
}

func TestMatchProduct_BadSKU(t *testing.T) {
	gw := &mockGateway{}
	_, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "2538"})
	require.Error(t, err)

	var skuErr *SKUExtractionError
	require.ErrorAs(t, err, &skuErr)
	assert.Contains(t, err.Error(), "SKU extraction failed")
	assert.Nil(t, TraceOf(err))
	gw.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchProduct_DirectURL(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(productPage(candidate1), nil).Once()

	data, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142", ScrapedURL: candidate1})
	require.NoError(t, err)

	assert.Equal(t, model.MethodDirectURL, data.Method)
	assert.Equal(t, candidate1, data.ProductURL)
	assert.Empty(t, data.SearchURL)
	assert.Equal(t, 100, data.ConfidenceScore)
	gw.AssertNumberOfCalls(t, "Scrape", 1)
}

func TestMatchProduct_DirectURLFailureSearches(t *testing.T) {
	stale := "https://www.lf-lighting.example/products/discontinued"
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, stale, mock.Anything).Return(notFoundPage(stale), nil).Once()
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(productPage(candidate1), nil).Once()

	data, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142", ScrapedURL: stale})
	require.NoError(t, err)

	assert.Equal(t, model.MethodSearchFirstResult, data.Method)
	assert.Equal(t, candidate1, data.ProductURL)
	assert.Equal(t, 3, data.CreditsUsed)
	gw.AssertExpectations(t)
}

func TestMatchProduct_NameHintFallbackScore(t *testing.T) {
	guess := "https://www.lf-lighting.example/products/luna-sconce"
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(&scrape.Result{
		URL:      searchURL1142,
		Success:  true,
		Markdown: "Nothing matched exactly. Try the Luna Sconce.",
	}, nil).Once()
	page := productPage(guess)
	page.Content = `<h1 class="product__title">Luna Sconce</h1>`
	gw.On("Scrape", mock.Anything, guess, mock.Anything).Return(page, nil).Once()

	data, err := newTestMatcher(t, gw).MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	require.NoError(t, err)

	assert.Equal(t, model.MethodFallback, data.Method)
	assert.Equal(t, 30, data.ConfidenceScore)
}

func TestMatchProduct_MaxCandidates(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).Return(notFoundPage(candidate1), nil).Once()

	m, err := New(gw, manufacturer.Default(), Config{MaxCandidates: 1})
	require.NoError(t, err)

	_, err = m.MatchProduct(context.Background(), model.Product{SupplierSKU: "LF1142"})
	var se *ScrapingError
	require.ErrorAs(t, err, &se)
	gw.AssertNotCalled(t, "Scrape", mock.Anything, candidate2, mock.Anything)
}

func TestMatchProduct_CancelledContext(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Scrape", mock.Anything, searchURL1142, mock.Anything).Return(searchPage(), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	gw.On("Scrape", mock.Anything, candidate1, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	_, err := newTestMatcher(t, gw).MatchProduct(ctx, model.Product{SupplierSKU: "LF1142"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	gw.AssertNotCalled(t, "Scrape", mock.Anything, candidate2, mock.Anything)
}
