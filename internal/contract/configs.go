package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Default values for configuration.
const (
	DefaultWorkers       = 8
	MaxWorkers           = 64
	DefaultRedisQueue    = "analysis-jobs"
	DefaultOverpassURL   = "https://overpass-api.de/api/interpreter"
	DefaultLeaseDuration = 5 * time.Minute
)

// TimeFormat is the default time representation.
var TimeFormat = time.RFC3339

// Config holds the runtime configuration for an analysis process.
// Fields that require complex parsing (dates, enums) are set by
// ProcessAndValidate after flags and environment are read.
type Config struct {
	DeviceID schema.DeviceID // Patient device for a single-run invocation
	TimeFrom time.Time       // Start of the analysis window
	TimeTo   time.Time       // End of the analysis window

	DatabaseDSN string // Raw data source DSN (postgres)

	CacheBackend schema.DatabaseBackend // Backend for feature cache and run tracking
	CacheDSN     string                 // DSN or file path for the cache backend

	OverpassEndpoint string // Map feature service endpoint
	OverpassBatched  bool   // Batch feature queries into combined requests

	RedisAddr     string        // Work queue address for worker mode
	RedisQueue    string        // Work queue name
	LeaseDuration time.Duration // Job lease duration in worker mode

	Workers    int               // Concurrent workers for graph fan-out
	Output     schema.OutputMode // Report output format
	OutputFile string            // Optional path to write the report to
	Daily      bool              // Emit the day-by-day report
	Detail     bool              // Include per-contact detail rows
	Testing    bool              // Bypass report inclusion rules
	DeviceInfo bool              // Attach device registration info to reports

	Params schema.AnalysisParams // Immutable analysis parameters
}

// ConfigRawInput holds the raw inputs from flags, environment and config
// file. Viper unmarshals into this struct before validation.
type ConfigRawInput struct {
	DeviceIDStr  string `mapstructure:"device"`
	TimeFromStr  string `mapstructure:"start"`
	TimeToStr    string `mapstructure:"end"`
	CacheBackend string `mapstructure:"cache-backend"`
	Output       string `mapstructure:"output"`
	Workers      int    `mapstructure:"workers"`

	DatabaseDSN      string `mapstructure:"database-dsn"`
	CacheDSN         string `mapstructure:"cache-dsn"`
	OverpassEndpoint string `mapstructure:"overpass-endpoint"`
	RedisAddr        string `mapstructure:"redis-addr"`
	RedisQueue       string `mapstructure:"redis-queue"`
	LeaseDurationStr string `mapstructure:"lease-duration"`
	OutputFile       string `mapstructure:"output-file"`
	Daily            bool   `mapstructure:"daily"`
	Detail           bool   `mapstructure:"detail"`
	Testing          bool   `mapstructure:"testing"`
	DeviceInfo       bool   `mapstructure:"device-info"`
}

// ProcessAndValidate performs all complex parsing and validation on the raw
// inputs and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	// --- 1. Workers Validation ---
	if input.Workers <= 0 || input.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d (received %d)", MaxWorkers, input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 2. Output Validation ---
	output := schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, json, parquet", input.Output)
	}
	cfg.Output = output

	// --- 3. Cache Backend Validation ---
	backend := schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidCacheBackends[backend]; !ok {
		return fmt.Errorf("%w: '%s'. must be sqlite, mysql, postgresql, none", ErrUnsupportedBackend, input.CacheBackend)
	}
	cfg.CacheBackend = backend

	// --- 4. Window Parsing ---
	// An empty window defaults to the last AnalysisDurationDays days,
	// resolved at run start.
	if input.TimeFromStr != "" {
		t, err := time.Parse(TimeFormat, input.TimeFromStr)
		if err != nil {
			return fmt.Errorf("invalid start date format for '%s'. must be RFC3339: %v", input.TimeFromStr, err)
		}
		cfg.TimeFrom = t.UTC()
	}
	if input.TimeToStr != "" {
		t, err := time.Parse(TimeFormat, input.TimeToStr)
		if err != nil {
			return fmt.Errorf("invalid end date format for '%s'. must be RFC3339: %v", input.TimeToStr, err)
		}
		cfg.TimeTo = t.UTC()
	}
	if !cfg.TimeFrom.IsZero() && !cfg.TimeTo.IsZero() && cfg.TimeFrom.After(cfg.TimeTo) {
		return fmt.Errorf("start time (%s) cannot be after end time (%s)",
			cfg.TimeFrom.Format(TimeFormat), cfg.TimeTo.Format(TimeFormat))
	}

	// --- 5. Device Normalization ---
	cfg.DeviceID = schema.NormalizedDeviceID(input.DeviceIDStr)

	// --- 6. Lease Duration ---
	cfg.LeaseDuration = DefaultLeaseDuration
	if input.LeaseDurationStr != "" {
		lease, err := time.ParseDuration(input.LeaseDurationStr)
		if err != nil || lease <= 0 {
			return fmt.Errorf("invalid lease duration '%s'. must be a positive Go duration like 5m", input.LeaseDurationStr)
		}
		cfg.LeaseDuration = lease
	}

	// --- 7. Pass-Through Fields ---
	cfg.DatabaseDSN = input.DatabaseDSN
	cfg.CacheDSN = input.CacheDSN
	cfg.OverpassEndpoint = input.OverpassEndpoint
	if cfg.OverpassEndpoint == "" {
		cfg.OverpassEndpoint = DefaultOverpassURL
	}
	cfg.RedisAddr = input.RedisAddr
	cfg.RedisQueue = input.RedisQueue
	if cfg.RedisQueue == "" {
		cfg.RedisQueue = DefaultRedisQueue
	}
	cfg.OutputFile = input.OutputFile
	cfg.Daily = input.Daily
	cfg.Detail = input.Detail
	cfg.Testing = input.Testing
	cfg.DeviceInfo = input.DeviceInfo

	// Parameters are fixed; only tests swap them out.
	if cfg.Params.AnalysisDurationDays == 0 {
		cfg.Params = schema.DefaultParams()
	}

	return nil
}

// ResolveWindow fills an empty analysis window relative to now.
func (c *Config) ResolveWindow(now time.Time) (time.Time, time.Time) {
	from, to := c.TimeFrom, c.TimeTo
	if to.IsZero() {
		to = now.UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -c.Params.AnalysisDurationDays)
	}
	return from, to
}
