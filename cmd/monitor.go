package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enrich/internal/monitoring"
)

var (
	monitorBatch  string
	monitorWatch  bool
	monitorWindow int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Collect enrichment metrics and send threshold alerts",
	Long:  "Collects product and attempt metrics, evaluates alert thresholds and posts alerts to the configured webhook. With --watch it keeps checking on the configured interval.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStoreOnly(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mcfg := cfg.Monitoring
		if cmd.Flags().Changed("window") {
			mcfg.LookbackWindowHours = monitorWindow
		}
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, costCalculator(cfg.Pricing)),
			monitoring.NewAlerter(mcfg),
			mcfg,
			monitorBatch,
		)

		if monitorWatch {
			checker.Run(ctx)
			return nil
		}
		report, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		return writeJSON(report)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorBatch, "batch", "", "limit metrics to one batch")
	monitorCmd.Flags().BoolVar(&monitorWatch, "watch", false, "keep checking until interrupted")
	monitorCmd.Flags().IntVar(&monitorWindow, "window", 24, "lookback window in hours (0 for all)")
	rootCmd.AddCommand(monitorCmd)
}
