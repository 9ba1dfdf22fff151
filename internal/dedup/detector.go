package dedup

import (
	"math"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// DetectorConfig holds conflict thresholds. Price thresholds are relative
// changes, similarities are 0..1 ratios.
type DetectorConfig struct {
	PriceThreshold          float64
	PriceCriticalThreshold  float64
	NameSimilarity          float64
	DescriptionSimilarity   float64
	AutoResolveNames        bool
	AutoResolveCategories   bool
	AutoResolveDescriptions bool
}

// DefaultDetectorConfig returns 10%/50% price thresholds, 80% name and 50%
// description similarity, with minor text conflicts auto-resolvable.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PriceThreshold:          0.10,
		PriceCriticalThreshold:  0.50,
		NameSimilarity:          0.80,
		DescriptionSimilarity:   0.50,
		AutoResolveNames:        true,
		AutoResolveCategories:   true,
		AutoResolveDescriptions: true,
	}
}

// Detector classifies field differences between a stored product and an
// incoming line item with the same manufacturer SKU.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns the conflicts in field order: price, name, category,
// manufacturer, description.
func (d *Detector) Detect(existing model.Product, incoming IncomingProduct) []DataConflict {
	var out []DataConflict
	for _, check := range []func(model.Product, IncomingProduct) (DataConflict, bool){
		d.price, d.name, d.category, d.manufacturer, d.description,
	} {
		if c, ok := check(existing, incoming); ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Detector) price(existing model.Product, incoming IncomingProduct) (DataConflict, bool) {
	c := DataConflict{Field: "price", Existing: floatValue(existing.Price), Incoming: floatValue(incoming.Price)}
	switch {
	case existing.Price == nil && incoming.Price == nil:
		return c, false
	case existing.Price == nil || incoming.Price == nil:
		c.Severity, c.AutoResolvable = SeverityMinor, true
		return c, true
	}

	old, cur := *existing.Price, *incoming.Price
	if old == 0 {
		if cur == 0 {
			return c, false
		}
		c.Severity = SeverityMajor
		return c, true
	}

	change := math.Abs(cur-old) / math.Abs(old)
	switch {
	case change > d.cfg.PriceCriticalThreshold:
		c.Severity = SeverityCritical
	case change > d.cfg.PriceThreshold:
		c.Severity = SeverityMajor
	default:
		return c, false
	}
	return c, true
}

func (d *Detector) name(existing model.Product, incoming IncomingProduct) (DataConflict, bool) {
	c := DataConflict{Field: "name", Existing: textValue(existing.Name), Incoming: textValue(incoming.Name)}
	a, b := Normalize(existing.Name), Normalize(incoming.Name)
	switch {
	case a == b:
		return c, false
	case a == "" || b == "":
		c.Severity, c.AutoResolvable = SeverityMinor, true
	case Similarity(a, b) >= d.cfg.NameSimilarity:
		c.Severity, c.AutoResolvable = SeverityMinor, d.cfg.AutoResolveNames
	default:
		c.Severity = SeverityMajor
	}
	return c, true
}

func (d *Detector) category(existing model.Product, incoming IncomingProduct) (DataConflict, bool) {
	c := DataConflict{Field: "category", Existing: textValue(existing.Category), Incoming: textValue(incoming.Category)}
	if Normalize(existing.Category) == Normalize(incoming.Category) {
		return c, false
	}
	c.Severity, c.AutoResolvable = SeverityMinor, d.cfg.AutoResolveCategories
	return c, true
}

// manufacturer only compares when both sides name one.
func (d *Detector) manufacturer(existing model.Product, incoming IncomingProduct) (DataConflict, bool) {
	c := DataConflict{Field: "manufacturer", Existing: textValue(existing.Manufacturer), Incoming: textValue(incoming.Manufacturer)}
	a, b := Normalize(existing.Manufacturer), Normalize(incoming.Manufacturer)
	if a == "" || b == "" || a == b {
		return c, false
	}
	c.Severity = SeverityMajor
	return c, true
}

func (d *Detector) description(existing model.Product, incoming IncomingProduct) (DataConflict, bool) {
	c := DataConflict{Field: "description", Existing: textValue(existing.Description), Incoming: textValue(incoming.Description)}
	a, b := Normalize(existing.Description), Normalize(incoming.Description)
	if a == "" || b == "" {
		return c, false
	}
	if Similarity(a, b) >= d.cfg.DescriptionSimilarity {
		return c, false
	}
	c.Severity, c.AutoResolvable = SeverityMinor, d.cfg.AutoResolveDescriptions
	return c, true
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// textValue reports empty strings as null.
func textValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}
