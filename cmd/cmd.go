// Package cmd defines the command-line interface for smittestopp.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("device", "", "Patient device ID to analyze")
	rootCmd.PersistentFlags().String("start", "", "Start of the analysis window in RFC3339")
	rootCmd.PersistentFlags().String("end", "", "End of the analysis window in RFC3339")
	rootCmd.PersistentFlags().String("database-dsn", "", "PostgreSQL DSN of the raw event database")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-dsn", "smittestopp-cache.db", "Connection string or file path for the cache backend")
	rootCmd.PersistentFlags().String("overpass-endpoint", contract.DefaultOverpassURL, "Map feature service endpoint")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().Bool("daily", false, "Emit the day-by-day report instead of the per-peer one")
	rootCmd.PersistentFlags().Bool("detail", false, "Include per-contact detail rows in reports")
	rootCmd.PersistentFlags().Bool("testing", false, "Bypass report inclusion rules")
	rootCmd.PersistentFlags().Bool("device-info", false, "Attach device registration info to reports")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of reportCmd to Viper
	reportCmd.Flags().Bool("filtered", false, "Apply the delivery field whitelist to the daily report")
	if err := viper.BindPFlags(reportCmd.Flags()); err != nil {
		contract.LogFatal("Error binding report flags", err)
	}

	// Bind all flags of workerCmd to Viper
	workerCmd.Flags().String("redis-addr", "localhost:6379", "Redis address of the work queue")
	workerCmd.Flags().String("redis-queue", contract.DefaultRedisQueue, "Work queue name")
	workerCmd.Flags().String("lease-duration", "5m", "Job lease duration")
	workerCmd.Flags().String("result-dir", "", "Directory to write per-job JSON results to")
	workerCmd.Flags().Bool("drain", false, "Exit when the queue is empty instead of waiting for jobs")
	if err := viper.BindPFlags(workerCmd.Flags()); err != nil {
		contract.LogFatal("Error binding worker flags", err)
	}

	// Bind all flags of cacheMigrateCmd to Viper
	cacheMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(cacheMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache migrate flags", err)
	}
}
