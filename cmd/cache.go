package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/iocache"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This avoids DSN validation for the raw event database, which cache
// commands never touch.
func cacheSetup(_ *cobra.Command, _ []string) error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	if _, ok := schema.ValidCacheBackends[backend]; !ok {
		return fmt.Errorf("%w: '%s'. must be sqlite, mysql, postgresql, none", contract.ErrUnsupportedBackend, backend)
	}
	cfg.CacheBackend = backend
	cfg.CacheDSN = viper.GetString("cache-dsn")
	return nil
}

// cacheCmd focused on cache management.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the map feature cache and run tracking store",
	Long: `Manage the persistent store that caches map feature responses and
tracks analysis runs.

Feature lookups against the map service are expensive and rate limited,
so responses are cached by query hash. Run tracking records every
analysis with its window and contact counts.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None

Subcommands:
  status  - Show cache statistics and connection info
  clear   - Remove all cached feature responses
  migrate - Run schema migrations for the cache tables

Examples:
  # Check cache status
  smittestopp cache status

  # Clear cache after a map data refresh
  smittestopp cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Remove all cached map feature responses",
	PreRunE: cacheSetup,
	Run: func(_ *cobra.Command, _ []string) {
		store, err := iocache.NewCacheStore(cfg.CacheBackend, cfg.CacheDSN)
		if err != nil {
			contract.LogFatal("Failed to open cache", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.Clear(); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Display cache statistics and connection details",
	PreRunE: cacheSetup,
	Run: func(_ *cobra.Command, _ []string) {
		manager, err := iocache.NewManager(cfg.CacheBackend, cfg.CacheDSN)
		if err != nil {
			contract.LogFatal("Failed to open cache", err)
		}
		defer func() { _ = manager.Close() }()

		cacheStatus, err := manager.GetFeatureStore().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		runStatus, err := manager.GetRunStore().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get run store status", err)
		}
		printStoreStatus(cacheStatus, runStatus)
	},
}

// cacheMigrateCmd runs schema migrations.
var cacheMigrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Run schema migrations for the cache tables",
	PreRunE: cacheSetup,
	Run: func(_ *cobra.Command, _ []string) {
		target := viper.GetInt("target-version")
		if err := iocache.Migrate(cfg.CacheBackend, cfg.CacheDSN, target); err != nil {
			contract.LogFatal("Migration failed", err)
		}
		fmt.Println("Migrations applied successfully.")
	},
}

// printStoreStatus renders both store statuses for the console.
func printStoreStatus(cacheStatus schema.CacheStatus, runStatus schema.RunStatus) {
	fmt.Printf("Feature cache (%s):\n", cacheStatus.Backend)
	fmt.Printf("  Entries:   %d\n", cacheStatus.Entries)
	fmt.Printf("  Size:      %.1f KB\n", float64(cacheStatus.SizeBytes)/1024.0)
	if cacheStatus.OldestSet > 0 {
		fmt.Printf("  Oldest:    %s\n", time.Unix(cacheStatus.OldestSet, 0).UTC().Format(time.RFC3339))
	}
	fmt.Printf("Run tracking (%s):\n", runStatus.Backend)
	fmt.Printf("  Runs:      %d\n", runStatus.Runs)
	if runStatus.LastRunAt > 0 {
		fmt.Printf("  Last run:  %s\n", time.Unix(runStatus.LastRunAt, 0).UTC().Format(time.RFC3339))
	}
}
