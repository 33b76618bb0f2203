// Package outwriter renders risk reports in the configured output
// format: human-readable tables, indented JSON, or Parquet export.
package outwriter

import (
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API
// for the command layer.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteReport prints a per-peer risk report using the configured output format.
func (ow *OutWriter) WriteReport(report *schema.Report, cfg *contract.Config, duration time.Duration) error {
	return writeReportResults(report, cfg, duration)
}

// WriteDailyReport prints a day-by-day risk report using the configured output format.
func (ow *OutWriter) WriteDailyReport(report *schema.DailyReport, cfg *contract.Config, duration time.Duration) error {
	return writeDailyReportResults(report, cfg, duration)
}

// WriteFiltered prints an already-filtered report document as JSON.
// Delivery filtering strips fields that tables would render, so the
// filtered form has no text or parquet representation.
func (ow *OutWriter) WriteFiltered(doc map[string]any, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeJSON(w, doc)
	}, "filtered JSON")
}

// getMaxTableDeviceWidth calculates the maximum width for device IDs in
// table output based on terminal width and table configuration.
func getMaxTableDeviceWidth(cfg *contract.Config) int {
	// Get terminal width
	termWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || termWidth <= 0 {
		// Fallback to conservative default if terminal size can't be detected
		termWidth = 80 // Conservative default for narrow terminals and CI
	}

	// Reserve space for fixed columns with table formatting
	baseWidth := 45 // Section + Contacts + Duration + Risk + Category with borders/padding

	if cfg.Detail {
		baseWidth += 25 // Median distance + phase duration columns
	}

	available := termWidth - baseWidth
	if available < 12 {
		// Minimum reasonable device ID width
		return 12
	}
	if available > 40 {
		// Device IDs are UUID-sized, no point going wider
		return 40
	}
	return available
}
