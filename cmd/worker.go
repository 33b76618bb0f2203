package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smittestopp/smittestoppbackend/core"
	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/overpass"
	"github.com/smittestopp/smittestoppbackend/internal/queue"
	"github.com/smittestopp/smittestoppbackend/internal/sqlsource"
)

// leaseWait is how long one blocking lease attempt waits for a job.
const leaseWait = 5 * time.Second

// workerCmd consumes analysis jobs from the Redis work queue.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis jobs from the work queue.",
	Long: `Run as a queue worker: lease analysis jobs from Redis, run the full
contact analysis for each, and write the resulting reports.

Leased jobs are tracked on a processing list guarded by a lease with a
TTL. The worker renews the lease while an analysis runs; jobs from
crashed workers are swept back to the pending list once their lease
expires. Failed jobs are requeued.

Examples:
  # Keep consuming jobs until interrupted
  smittestopp worker --database-dsn postgres://... --redis-addr localhost:6379

  # Process the backlog and exit
  smittestopp worker --drain --result-dir /var/lib/smittestopp/reports`,
	PreRunE: sharedSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := executeWorker(rootCtx); err != nil {
			contract.LogFatal("Worker failed", err)
		}
	},
}

// executeWorker runs the queue consumption loop until the context is
// cancelled or, in drain mode, the queue is empty.
func executeWorker(parent context.Context) error {
	if cfg.DatabaseDSN == "" {
		return errors.New("--database-dsn is required")
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := sqlsource.New(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	q, err := queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisQueue, cfg.LeaseDuration)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	deps := core.PipelineDeps{
		Source:   source,
		Features: overpass.NewClient(cfg.OverpassEndpoint, cacheManager.GetFeatureStore(), cfg.Workers),
		Runs:     cacheManager.GetRunStore(),
	}
	resultDir := viper.GetString("result-dir")
	drain := viper.GetBool("drain")

	// Recover jobs abandoned by crashed workers before taking new ones.
	if recovered, err := q.SweepExpired(ctx); err != nil {
		contract.Logger.Warn().Err(err).Msg("lease sweep failed")
	} else if recovered > 0 {
		contract.Logger.Info().Int("jobs", recovered).Msg("recovered expired jobs")
	}

	for {
		if err := ctx.Err(); err != nil {
			contract.Logger.Info().Msg("worker shutting down")
			return nil
		}
		job, err := q.Lease(ctx, leaseWait)
		if errors.Is(err, contract.ErrEmptyQueue) {
			if drain {
				contract.Logger.Info().Msg("queue drained")
				return nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			contract.Logger.Warn().Err(err).Msg("lease attempt failed")
			continue
		}
		if err := processJob(ctx, q, deps, job, resultDir); err != nil {
			contract.Logger.Error().Err(err).Str("job", job.ID).Msg("job failed, requeueing")
			if reqErr := q.Requeue(ctx, job); reqErr != nil {
				contract.Logger.Error().Err(reqErr).Str("job", job.ID).Msg("requeue failed")
			}
		}
	}
}

// processJob runs one leased job, renewing the lease while the analysis
// is in flight, and completes it on success.
func processJob(ctx context.Context, q *queue.RedisQueue, deps core.PipelineDeps, job *queue.Job, resultDir string) error {
	log := contract.Logger.With().Str("job", job.ID).Str("device", string(job.DeviceID)).Logger()
	log.Info().Msg("processing job")

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(cfg.LeaseDuration / 3)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if err := q.Renew(jobCtx, job); err != nil {
					log.Warn().Err(err).Msg("lease renewal failed")
				}
			}
		}
	}()

	result, err := core.RunAnalysis(jobCtx, cfg, deps, job.Request(), version)
	if err != nil {
		return err
	}
	if resultDir != "" {
		if err := writeJobResult(resultDir, job.ID, result); err != nil {
			return fmt.Errorf("writing job result: %w", err)
		}
	}
	if err := q.Complete(ctx, job); err != nil {
		return err
	}
	log.Info().Dur("elapsed", result.Elapsed).Msg("job done")
	return nil
}

// writeJobResult stores the report of one job as an indented JSON file
// named after the job ID.
func writeJobResult(dir, jobID string, result *core.AnalysisResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var doc any
	if result.DailyReport != nil {
		doc = result.DailyReport
	} else {
		doc = result.Report
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, jobID+".json"), raw, 0o644)
}
