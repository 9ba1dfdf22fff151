package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enrich/internal/enrichment"
)

var enrichConcurrency int

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich products from manufacturer product pages",
}

var enrichProductCmd = &cobra.Command{
	Use:   "product <product-id>",
	Short: "Enrich a single product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Enrichment.EnrichProduct(ctx, args[0])
		if err := writeJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return eris.Errorf("enrich product %s: %s", args[0], res.ErrorMessage)
		}
		return nil
	},
}

var enrichBatchCmd = &cobra.Command{
	Use:   "batch <batch-id>",
	Short: "Enrich every draft product in a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Enrichment.EnrichBatch(ctx, args[0], enrichment.BatchOptions{MaxConcurrent: enrichConcurrency})
		if err != nil {
			return eris.Wrap(err, "enrich batch")
		}
		return writeJSON(res)
	},
}

var enrichProductsCmd = &cobra.Command{
	Use:   "products <product-id>...",
	Short: "Enrich the given products regardless of batch or status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Enrichment.EnrichProducts(ctx, args, enrichment.BatchOptions{MaxConcurrent: enrichConcurrency})
		if err != nil {
			return eris.Wrap(err, "enrich products")
		}
		return writeJSON(res)
	},
}

func init() {
	for _, c := range []*cobra.Command{enrichBatchCmd, enrichProductsCmd} {
		c.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "max concurrent products (1-20, default from config)")
	}
	enrichCmd.AddCommand(enrichProductCmd, enrichBatchCmd, enrichProductsCmd)
	rootCmd.AddCommand(enrichCmd)
}
