package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// newProduct fills the fields CreateProduct owns.
func newProduct(p model.Product) model.Product {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.ProductStatusDraft
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func encodeImages(urls []string, meta []model.ImageMetadata) (string, string, error) {
	if urls == nil {
		urls = []string{}
	}
	if meta == nil {
		meta = []model.ImageMetadata{}
	}
	u, err := json.Marshal(urls)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal scraped images")
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal image metadata")
	}
	return string(u), string(m), nil
}

func decodeImages(p *model.Product, urls, meta []byte) error {
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &p.ScrapedImages); err != nil {
			return eris.Wrap(err, "unmarshal scraped images")
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.ImageMetadata); err != nil {
			return eris.Wrap(err, "unmarshal image metadata")
		}
	}
	if len(p.ScrapedImages) == 0 {
		p.ScrapedImages = nil
	}
	if len(p.ImageMetadata) == 0 {
		p.ImageMetadata = nil
	}
	return nil
}

// nullString maps "" to NULL so unset manufacturer SKUs do not collide on
// the unique index.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampConfidence(v int) int {
	return max(0, min(v, 100))
}
