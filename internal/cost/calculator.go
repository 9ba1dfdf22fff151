// Package cost converts provider usage into dollar estimates.
package cost

import "math"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Firecrawl FirecrawlRate `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// FirecrawlRate holds Firecrawl plan pricing. Credits are billed at the
// plan's effective per-credit price.
type FirecrawlRate struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// PerCredit returns the effective price of one Firecrawl credit, or 0 when
// the plan includes no credits.
func (c *Calculator) PerCredit() float64 {
	r := c.rates.Firecrawl
	if r.CreditsIncluded <= 0 {
		return 0
	}
	return r.PlanMonthly / r.CreditsIncluded
}

// Firecrawl returns the cost of credits, rounded to four decimals.
func (c *Calculator) Firecrawl(credits int) float64 {
	if credits <= 0 {
		return 0
	}
	return math.Round(float64(credits)*c.PerCredit()*10000) / 10000
}

// CreditsRemaining returns how many plan credits are left after used.
func (c *Calculator) CreditsRemaining(used int) int {
	left := int(c.rates.Firecrawl.CreditsIncluded) - used
	if left < 0 {
		return 0
	}
	return left
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Firecrawl: FirecrawlRate{PlanMonthly: 19.00, CreditsIncluded: 3000},
	}
}
