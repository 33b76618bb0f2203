package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/queue"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// enqueueCmd submits one analysis job to the work queue.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit an analysis job to the work queue.",
	Long: `Queue one analysis request for the worker pool instead of running it
in-process.

Examples:
  # Queue a default-window analysis
  smittestopp enqueue --device aaaa-1111

  # Queue a daily report over an explicit window
  smittestopp enqueue --device aaaa-1111 --daily \
    --start 2020-04-01T00:00:00Z --end 2020-04-08T00:00:00Z`,
	PreRunE: sharedSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := executeEnqueue(); err != nil {
			contract.LogFatal("Cannot enqueue job", err)
		}
	},
}

func executeEnqueue() error {
	if cfg.DeviceID == "" {
		return errors.New("--device is required")
	}
	q, err := queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisQueue, cfg.LeaseDuration)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	jobID, err := q.Enqueue(rootCtx, schema.AnalysisRequest{
		DeviceID: cfg.DeviceID,
		TimeFrom: cfg.TimeFrom,
		TimeTo:   cfg.TimeTo,
		Daily:    cfg.Daily,
		Testing:  cfg.Testing,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Queued job %s for device %s\n", jobID, cfg.DeviceID)
	return nil
}
