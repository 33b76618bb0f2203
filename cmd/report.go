package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smittestopp/smittestoppbackend/core"
	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/outwriter"
	"github.com/smittestopp/smittestoppbackend/internal/overpass"
	"github.com/smittestopp/smittestoppbackend/internal/sqlsource"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// reportCmd runs one analysis for a single patient device.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the risk report for one patient device.",
	Long: `Run the full contact analysis for a patient device and print the report.

Builds the GPS and Bluetooth contact graphs over the analysis window,
resolves points of interest around every contact, scores the risk of
each encounter and assembles the per-peer or day-by-day report.

Examples:
  # Per-peer report for the last 7 days
  smittestopp report --device aaaa-1111 --database-dsn postgres://...

  # Day-by-day report over an explicit window, as JSON
  smittestopp report --device aaaa-1111 --daily --output json \
    --start 2020-04-01T00:00:00Z --end 2020-04-08T00:00:00Z

  # Delivery form with the field whitelist applied
  smittestopp report --device aaaa-1111 --daily --filtered`,
	PreRunE: sharedSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := executeReport(rootCtx); err != nil {
			contract.LogFatal("Cannot run report analysis", err)
		}
	},
}

// executeReport wires the data source, feature service and run store
// together and runs one analysis from the CLI configuration.
func executeReport(ctx context.Context) error {
	if cfg.DeviceID == "" {
		return errors.New("--device is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("--database-dsn is required")
	}

	source, err := sqlsource.New(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	deps := core.PipelineDeps{
		Source:   source,
		Features: overpass.NewClient(cfg.OverpassEndpoint, cacheManager.GetFeatureStore(), cfg.Workers),
		Runs:     cacheManager.GetRunStore(),
	}
	req := schema.AnalysisRequest{
		DeviceID: cfg.DeviceID,
		TimeFrom: cfg.TimeFrom,
		TimeTo:   cfg.TimeTo,
		Daily:    cfg.Daily,
		Testing:  cfg.Testing,
	}

	start := time.Now()
	result, err := core.RunAnalysis(ctx, cfg, deps, req, version)
	if err != nil {
		return err
	}

	writer := outwriter.NewOutWriter()
	if result.DailyReport != nil {
		if viper.GetBool("filtered") {
			filtered, err := core.FilterDailyReport(result.DailyReport)
			if err != nil {
				return fmt.Errorf("filtering report for delivery: %w", err)
			}
			return writer.WriteFiltered(filtered, cfg)
		}
		return writer.WriteDailyReport(result.DailyReport, cfg, time.Since(start))
	}
	return writer.WriteReport(result.Report, cfg, time.Since(start))
}
