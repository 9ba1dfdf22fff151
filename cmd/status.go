package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enrich/internal/enrichment"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

var statusAttempts bool

var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show live enrichment status for a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStoreOnly(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, err := batchStatus(ctx, st, args[0], statusAttempts)
		if err != nil {
			return err
		}
		return writeJSON(out)
	},
}

type productAttempts struct {
	ProductID       string                  `json:"product_id"`
	ManufacturerSKU string                  `json:"manufacturer_sku,omitempty"`
	Status          model.ProductStatus     `json:"status"`
	Attempts        []model.ScrapingAttempt `json:"attempts"`
}

type statusOutput struct {
	*model.EnrichmentStatus
	Products []productAttempts `json:"products,omitempty"`
}

// batchStatus reads the status summary. Matching is not needed, so the
// service is built without a gateway.
func batchStatus(ctx context.Context, st store.Store, batchID string, withAttempts bool) (*statusOutput, error) {
	svc := enrichment.New(st, nil, enrichment.DefaultConfig())
	summary, err := svc.GetEnrichmentStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := &statusOutput{EnrichmentStatus: summary}
	if !withAttempts {
		return out, nil
	}

	products, err := st.GetProducts(ctx, store.ProductFilter{BatchID: batchID})
	if err != nil {
		return nil, eris.Wrap(err, "list batch products")
	}
	for _, p := range products {
		attempts, err := st.ListScrapingAttempts(ctx, p.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "list attempts for %s", p.ID)
		}
		out.Products = append(out.Products, productAttempts{
			ProductID:       p.ID,
			ManufacturerSKU: p.ManufacturerSKU,
			Status:          p.Status,
			Attempts:        attempts,
		})
	}
	return out, nil
}

func init() {
	statusCmd.Flags().BoolVar(&statusAttempts, "attempts", false, "include each product's scraping attempts")
	rootCmd.AddCommand(statusCmd)
}
