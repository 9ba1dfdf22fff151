package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/dedup"
	"github.com/sells-group/catalog-enrich/internal/importer"
)

var (
	dedupFile  string
	dedupBatch string
	dedupSheet string
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Import invoice line items, creating new products and flagging conflicts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStoreOnly(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := importLineItems(ctx, dedup.NewFromConfig(st, cfg.Dedup), dedupFile, dedupBatch, dedupSheet)
		if err != nil {
			return err
		}
		return writeJSON(sum)
	},
}

type dedupOutput struct {
	*dedup.Summary
	Skipped []importer.Issue `json:"skipped_rows,omitempty"`
}

func importLineItems(ctx context.Context, engine *dedup.Engine, path, batchID, sheet string) (*dedupOutput, error) {
	parsed, err := importer.ReadFile(ctx, path, importer.Options{XLSX: importer.XLSXOptions{SheetName: sheet}})
	if err != nil {
		return nil, eris.Wrap(err, "read line items")
	}
	for _, issue := range parsed.Skipped {
		zap.L().Warn("dedup: skipped line item", zap.Int("row", issue.Row), zap.String("reason", issue.Reason))
	}

	sum, err := engine.ProcessBatch(ctx, parsed.Items, batchID)
	if err != nil {
		return nil, err
	}
	return &dedupOutput{Summary: sum, Skipped: parsed.Skipped}, nil
}

func init() {
	dedupCmd.Flags().StringVar(&dedupFile, "file", "", "line-item file (.csv, .tsv, .xlsx, .json) (required)")
	dedupCmd.Flags().StringVar(&dedupBatch, "batch", "", "batch id to assign to created products (required)")
	dedupCmd.Flags().StringVar(&dedupSheet, "sheet", "", "worksheet name for .xlsx files (default first sheet)")
	_ = dedupCmd.MarkFlagRequired("file")
	_ = dedupCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(dedupCmd)
}
