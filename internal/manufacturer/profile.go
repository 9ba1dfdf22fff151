// Package manufacturer describes how to search and parse a manufacturer's
// storefront.
package manufacturer

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SKUPlaceholder is replaced by the URL-encoded numeric SKU in
// SearchURLTemplate.
const SKUPlaceholder = "{sku}"

// Selectors lists CSS selectors tried in order for each extracted field.
type Selectors struct {
	SearchResults []string `yaml:"search_results"`
	Name          []string `yaml:"name"`
	Description   []string `yaml:"description"`
	SKU           []string `yaml:"sku"`
	Images        []string `yaml:"images"`
}

// Profile is the site-specific configuration the matcher runs against.
// Call Compile before use; Default and Load return compiled profiles.
type Profile struct {
	Name              string `yaml:"name"`
	BaseURL           string `yaml:"base_url"`
	SearchURLTemplate string `yaml:"search_url_template"`

	// SKUPattern extracts the numeric key from a supplier SKU. The first
	// capture group is the numeric part.
	SKUPattern string `yaml:"sku_pattern"`
	// PageSKUPattern finds the manufacturer's SKU in rendered page text.
	PageSKUPattern string `yaml:"page_sku_pattern"`

	ProductPathPatterns []string  `yaml:"product_path_patterns"`
	Selectors           Selectors `yaml:"selectors"`
	ProductNameHints    []string  `yaml:"product_name_hints"`
	SoftNotFoundPhrases []string  `yaml:"soft_not_found_phrases"`
	ImageInclude        []string  `yaml:"image_include"`
	ImageExclude        []string  `yaml:"image_exclude"`

	skuRe     *regexp.Regexp
	pageSKURe *regexp.Regexp
}

// Default returns the built-in profile for the LF-prefixed lighting catalog.
func Default() *Profile {
	p := &Profile{
		Name:              "lf-lighting",
		BaseURL:           "https://www.lf-lighting.example",
		SearchURLTemplate: "https://www.lf-lighting.example/search?q={sku}&type=product",
		SKUPattern:        `(?i)\b[A-Z]{1,3}[\s-]?(\d{3,6})\b`,
		PageSKUPattern:    `(?i)\bLF[\s-]?\d{3,6}\b`,
		ProductPathPatterns: []string{
			"/products/*",
			"/collections/*/products/*",
		},
		Selectors: Selectors{
			SearchResults: []string{
				"a.product-item__title",
				"a.product-card__link",
				".product-item a[href*='/products/']",
				".search-results a[href*='/products/']",
				"a[href*='/products/']",
			},
			Name: []string{
				"h1.product__title",
				"h1.product-single__title",
				".product-title h1",
				"[itemprop='name']",
				"h1",
			},
			Description: []string{
				".product__description",
				".product-single__description",
				"[itemprop='description']",
				".rte",
			},
			SKU: []string{
				".product__sku",
				".product-single__sku",
				"[itemprop='sku']",
				".variant-sku",
			},
			Images: []string{
				".product__media img",
				".product-single__photo img",
				".product-gallery img",
				"[data-product-image]",
				".product img",
			},
		},
		ProductNameHints: []string{
			"Aria Pendant",
			"Luna Sconce",
			"Halo Flush Mount",
			"Strata Linear",
			"Orbit Chandelier",
		},
		SoftNotFoundPhrases: []string{"back to home", "continue shopping"},
		ImageInclude:        []string{"product", "cdn", "files", "images"},
		ImageExclude:        []string{"logo", "icon", "banner", "footer", "header", "nav"},
	}
	if err := p.Compile(); err != nil {
		panic(err)
	}
	return p
}

// Load reads a YAML profile from path and overlays its non-empty fields on
// the default profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manufacturer: read profile %s", path)
	}

	var overlay Profile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, eris.Wrapf(err, "manufacturer: parse profile %s", path)
	}

	p := Default()
	p.merge(&overlay)
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

// Compile validates the profile and compiles its patterns.
func (p *Profile) Compile() error {
	if p.BaseURL == "" {
		return eris.New("manufacturer: base_url is required")
	}
	if !strings.Contains(p.SearchURLTemplate, SKUPlaceholder) {
		return eris.Errorf("manufacturer: search_url_template must contain %s", SKUPlaceholder)
	}

	skuRe, err := regexp.Compile(p.SKUPattern)
	if err != nil {
		return eris.Wrap(err, "manufacturer: compile sku_pattern")
	}
	if skuRe.NumSubexp() < 1 {
		return eris.New("manufacturer: sku_pattern needs a capture group for the numeric part")
	}
	pageRe, err := regexp.Compile(p.PageSKUPattern)
	if err != nil {
		return eris.Wrap(err, "manufacturer: compile page_sku_pattern")
	}

	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	p.skuRe = skuRe
	p.pageSKURe = pageRe
	return nil
}

// SKURegexp returns the compiled supplier SKU pattern.
func (p *Profile) SKURegexp() *regexp.Regexp { return p.skuRe }

// PageSKURegexp returns the compiled on-page SKU pattern.
func (p *Profile) PageSKURegexp() *regexp.Regexp { return p.pageSKURe }

func (p *Profile) merge(o *Profile) {
	setString(&p.Name, o.Name)
	setString(&p.BaseURL, o.BaseURL)
	setString(&p.SearchURLTemplate, o.SearchURLTemplate)
	setString(&p.SKUPattern, o.SKUPattern)
	setString(&p.PageSKUPattern, o.PageSKUPattern)
	setList(&p.ProductPathPatterns, o.ProductPathPatterns)
	setList(&p.Selectors.SearchResults, o.Selectors.SearchResults)
	setList(&p.Selectors.Name, o.Selectors.Name)
	setList(&p.Selectors.Description, o.Selectors.Description)
	setList(&p.Selectors.SKU, o.Selectors.SKU)
	setList(&p.Selectors.Images, o.Selectors.Images)
	setList(&p.ProductNameHints, o.ProductNameHints)
	setList(&p.SoftNotFoundPhrases, o.SoftNotFoundPhrases)
	setList(&p.ImageInclude, o.ImageInclude)
	setList(&p.ImageExclude, o.ImageExclude)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}
