package matching

import (
	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// Scores are the confidence tiers, highest first.
type Scores struct {
	ExactMatch    int
	ResultWithSKU int
	ResultNoSKU   int
	Fallback      int
}

// DefaultScores returns {100, 90, 60, 30}.
func DefaultScores() Scores {
	return Scores{ExactMatch: 100, ResultWithSKU: 90, ResultNoSKU: 60, Fallback: 30}
}

// CalculateConfidence scores a match. The tiers are checked in order:
// numeric SKUs equal, results with an on-page SKU, results without one,
// anything else. The method label does not affect the score.
func CalculateConfidence(p *manufacturer.Profile, s Scores, originalSKU, foundSKU string, resultCount int, _ model.AttemptMethod) int {
	orig, _ := ExtractNumericSKU(p, originalSKU)
	found := numericPart(p, foundSKU)

	var score int
	switch {
	case orig != "" && found != "" && orig == found:
		score = s.ExactMatch
	case resultCount > 0 && foundSKU != "":
		score = s.ResultWithSKU
	case resultCount > 0:
		score = s.ResultNoSKU
	default:
		score = s.Fallback
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
