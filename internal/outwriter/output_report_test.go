package outwriter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *schema.Report {
	return &schema.Report{
		Contacts: map[schema.DeviceID]schema.PeerReport{
			"peer-a": {
				ContactListSummary: schema.ContactListSummary{
					NumberOfContacts:    1,
					CumulativeDuration:  600,
					CumulativeRiskScore: 6.25,
					RiskCategory:        schema.BTBelow15Min,
				},
				BTContacts: &schema.ContactListSummary{
					NumberOfContacts:   1,
					CumulativeDuration: 600,
				},
			},
		},
		VersionInfo: schema.VersionInfo{Pipeline: "1.0.0"},
	}
}

// TestFormatSeconds tests compact duration rendering.
func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "10m0s", formatSeconds(600))
	assert.Equal(t, "1h30m0s", formatSeconds(5400))
	assert.Equal(t, "0s", formatSeconds(0))
	assert.Equal(t, "1s", formatSeconds(1.4))
}

// TestSummaryTableRow tests row shape with and without detail columns.
func TestSummaryTableRow(t *testing.T) {
	summary := schema.ContactListSummary{
		NumberOfContacts:          2,
		CumulativeDuration:        600,
		CumulativeRiskScore:       1.234,
		RiskCategory:              schema.HighRisk,
		MedianDistance:            2.5,
		CumulativeDurationInside:  300,
		CumulativeDurationOutside: 120,
	}

	row := summaryTableRow("peer-a", "all", summary, &contract.Config{})
	require.Len(t, row, 6)
	assert.Equal(t, "peer-a", row[0])
	assert.Equal(t, "all", row[1])
	assert.Equal(t, "2", row[2])
	assert.Equal(t, "10m0s", row[3])
	assert.Equal(t, "1.23", row[4])
	assert.Contains(t, row[5], string(schema.HighRisk))

	detailed := summaryTableRow("peer-a", "all", summary, &contract.Config{Detail: true})
	require.Len(t, detailed, 9)
	assert.Equal(t, "2.5m", detailed[6])
	assert.Equal(t, "5m0s", detailed[7])
	assert.Equal(t, "2m0s", detailed[8])
}

// TestWriteReportTable tests the text rendering path.
func TestWriteReportTable(t *testing.T) {
	cfg := &contract.Config{Workers: 4, CacheBackend: schema.NoneBackend}

	var buf bytes.Buffer
	require.NoError(t, writeReportTable(sampleReport(), cfg, 2*time.Second, &buf))

	out := buf.String()
	assert.Contains(t, out, "peer-a")
	assert.Contains(t, out, "Showing 1 reportable peers (total contacts: 1)")
	assert.Contains(t, out, "with 4 workers")
}

// TestWriteReportResultsJSON tests the JSON output path to a file.
func TestWriteReportResultsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	cfg := &contract.Config{Output: schema.JSONOut, OutputFile: path}

	require.NoError(t, writeReportResults(sampleReport(), cfg, time.Second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded schema.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded.Contacts, schema.DeviceID("peer-a"))
	assert.Equal(t, "1.0.0", decoded.VersionInfo.Pipeline)
}

// TestWriteReportResultsParquet tests parquet dispatch and its
// output-file requirement.
func TestWriteReportResultsParquet(t *testing.T) {
	t.Run("requires an output file", func(t *testing.T) {
		cfg := &contract.Config{Output: schema.ParquetOut}
		assert.Error(t, writeReportResults(sampleReport(), cfg, time.Second))
	})

	t.Run("writes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.parquet")
		cfg := &contract.Config{Output: schema.ParquetOut, OutputFile: path}
		require.NoError(t, writeReportResults(sampleReport(), cfg, time.Second))
		assert.FileExists(t, path)
	})
}

// TestWriteDailyReportTable tests the per-peer daily rendering path.
func TestWriteDailyReportTable(t *testing.T) {
	report := &schema.DailyReport{
		Contacts: map[schema.DeviceID]schema.DailyPeerReport{
			"peer-a": {
				Cumulative: schema.CumulativeSection{
					AllContacts: schema.ContactListSummary{NumberOfContacts: 1, CumulativeDuration: 7200},
				},
				Daily: map[string]schema.CumulativeSection{
					"2020-04-01": {AllContacts: schema.ContactListSummary{NumberOfContacts: 1, CumulativeDuration: 3600}},
				},
				DaysInContact: 1,
			},
		},
	}
	cfg := &contract.Config{Workers: 2, CacheBackend: schema.SQLiteBackend}

	var buf bytes.Buffer
	require.NoError(t, writeDailyReportTable(report, cfg, time.Second, &buf))

	out := buf.String()
	assert.Contains(t, out, "Peer peer-a (1 days in contact)")
	assert.Contains(t, out, "2020-04-01")
	assert.Contains(t, out, "cumulative")
}

// TestGetMaxTableDeviceWidth tests the width clamp without a terminal.
func TestGetMaxTableDeviceWidth(t *testing.T) {
	// Test runs detached from a terminal, so the 80 column fallback
	// applies.
	assert.Equal(t, 35, getMaxTableDeviceWidth(&contract.Config{}))
	assert.Equal(t, 12, getMaxTableDeviceWidth(&contract.Config{Detail: true}))
}
