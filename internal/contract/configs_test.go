package contract

import (
	"testing"
	"time"

	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validInput returns a raw input that passes every validation step.
func validInput() *ConfigRawInput {
	return &ConfigRawInput{
		DeviceIDStr:  "Device-ABC",
		CacheBackend: "none",
		Output:       "json",
		Workers:      4,
	}
}

// TestProcessAndValidate tests parsing and validation of raw inputs.
func TestProcessAndValidate(t *testing.T) {
	t.Run("valid input fills defaults", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, ProcessAndValidate(cfg, validInput()))

		assert.Equal(t, schema.DeviceID("device-abc"), cfg.DeviceID)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, schema.JSONOut, cfg.Output)
		assert.Equal(t, schema.NoneBackend, cfg.CacheBackend)
		assert.Equal(t, DefaultOverpassURL, cfg.OverpassEndpoint)
		assert.Equal(t, DefaultRedisQueue, cfg.RedisQueue)
		assert.Equal(t, DefaultLeaseDuration, cfg.LeaseDuration)
		assert.Equal(t, schema.DefaultParams(), cfg.Params)
	})

	t.Run("window parsing", func(t *testing.T) {
		input := validInput()
		input.TimeFromStr = "2020-04-01T00:00:00Z"
		input.TimeToStr = "2020-04-08T00:00:00Z"

		cfg := &Config{}
		require.NoError(t, ProcessAndValidate(cfg, input))
		assert.Equal(t, time.Date(2020, time.April, 1, 0, 0, 0, 0, time.UTC), cfg.TimeFrom)
		assert.Equal(t, time.Date(2020, time.April, 8, 0, 0, 0, 0, time.UTC), cfg.TimeTo)
	})

	t.Run("lease duration parsing", func(t *testing.T) {
		input := validInput()
		input.LeaseDurationStr = "90s"

		cfg := &Config{}
		require.NoError(t, ProcessAndValidate(cfg, input))
		assert.Equal(t, 90*time.Second, cfg.LeaseDuration)
	})

	t.Run("uppercase enums are normalized", func(t *testing.T) {
		input := validInput()
		input.Output = "TEXT"
		input.CacheBackend = "SQLite"

		cfg := &Config{}
		require.NoError(t, ProcessAndValidate(cfg, input))
		assert.Equal(t, schema.TextOut, cfg.Output)
		assert.Equal(t, schema.SQLiteBackend, cfg.CacheBackend)
	})

	tests := []struct {
		name   string
		mutate func(*ConfigRawInput)
		errMsg string
	}{
		{"zero workers", func(in *ConfigRawInput) { in.Workers = 0 }, "workers must be between"},
		{"too many workers", func(in *ConfigRawInput) { in.Workers = 65 }, "workers must be between"},
		{"bad output", func(in *ConfigRawInput) { in.Output = "yaml" }, "invalid output format"},
		{"bad backend", func(in *ConfigRawInput) { in.CacheBackend = "oracle" }, "must be sqlite"},
		{"bad start date", func(in *ConfigRawInput) { in.TimeFromStr = "01.04.2020" }, "invalid start date"},
		{"bad end date", func(in *ConfigRawInput) { in.TimeToStr = "yesterday" }, "invalid end date"},
		{"start after end", func(in *ConfigRawInput) {
			in.TimeFromStr = "2020-04-08T00:00:00Z"
			in.TimeToStr = "2020-04-01T00:00:00Z"
		}, "cannot be after end time"},
		{"bad lease duration", func(in *ConfigRawInput) { in.LeaseDurationStr = "soon" }, "invalid lease duration"},
		{"negative lease duration", func(in *ConfigRawInput) { in.LeaseDurationStr = "-5m" }, "invalid lease duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)
			err := ProcessAndValidate(&Config{}, input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// TestResolveWindow tests default window resolution.
func TestResolveWindow(t *testing.T) {
	now := time.Date(2020, time.April, 15, 12, 0, 0, 0, time.UTC)
	params := schema.DefaultParams()

	t.Run("empty window looks back the default days", func(t *testing.T) {
		cfg := &Config{Params: params}
		from, to := cfg.ResolveWindow(now)
		assert.Equal(t, now, to)
		assert.Equal(t, now.AddDate(0, 0, -params.AnalysisDurationDays), from)
	})

	t.Run("explicit window is untouched", func(t *testing.T) {
		cfg := &Config{
			Params:   params,
			TimeFrom: time.Unix(1000, 0).UTC(),
			TimeTo:   time.Unix(2000, 0).UTC(),
		}
		from, to := cfg.ResolveWindow(now)
		assert.Equal(t, cfg.TimeFrom, from)
		assert.Equal(t, cfg.TimeTo, to)
	})

	t.Run("open start anchors on the given end", func(t *testing.T) {
		end := time.Date(2020, time.April, 10, 0, 0, 0, 0, time.UTC)
		cfg := &Config{Params: params, TimeTo: end}
		from, to := cfg.ResolveWindow(now)
		assert.Equal(t, end, to)
		assert.Equal(t, end.AddDate(0, 0, -params.AnalysisDurationDays), from)
	})
}
