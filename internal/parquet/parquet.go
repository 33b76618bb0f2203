// Package parquet exports risk reports and analysis run records to
// Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Section labels for flattened report rows.
const (
	AllSection = "all"
	GPSSection = "gps"
	BTSection  = "bt"
)

// ReportRow is one flattened contact summary. Per-peer reports produce
// cumulative rows only; daily reports add one row per day and section.
type ReportRow struct {
	// Device is the peer the row summarizes contacts with
	Device string `parquet:"device,snappy"`

	// Section is all, gps or bt
	Section string `parquet:"section,snappy"`

	// Date is the day key of a daily row, empty for cumulative rows
	Date string `parquet:"date,optional,snappy"`

	// Contacts is the number of contacts in the section
	Contacts int32 `parquet:"contacts,snappy"`

	// Duration is the cumulative contact duration in seconds
	Duration float64 `parquet:"duration,snappy"`

	// RiskScore is the cumulative risk score of the section
	RiskScore float64 `parquet:"risk_score,snappy"`

	// RiskCategory is the categorical risk outcome
	RiskCategory string `parquet:"risk_category,snappy"`

	// MedianDistance is the weighted median contact distance in meters
	MedianDistance float64 `parquet:"median_distance,snappy"`

	// DurationInside is the time spent inside buildings in seconds
	DurationInside float64 `parquet:"duration_inside,snappy"`

	// DurationOutside is the time spent outdoors in seconds
	DurationOutside float64 `parquet:"duration_outside,snappy"`

	// DurationUncertain is the time without a located surrounding
	DurationUncertain float64 `parquet:"duration_uncertain,snappy"`

	// BTVeryCloseDuration is the Bluetooth very-close phase in seconds
	BTVeryCloseDuration float64 `parquet:"bt_very_close_duration,snappy"`

	// BTCloseDuration is the Bluetooth close phase in seconds
	BTCloseDuration float64 `parquet:"bt_close_duration,snappy"`

	// BTRelativelyCloseDuration is the Bluetooth relatively-close phase
	BTRelativelyCloseDuration float64 `parquet:"bt_relatively_close_duration,snappy"`

	// DaysInContact is the day count of cumulative daily rows
	DaysInContact int32 `parquet:"days_in_contact,snappy"`
}

// RunRow is one analysis run record for export.
type RunRow struct {
	// RunID is the queue job or tracking identifier of the run
	RunID string `parquet:"run_id,snappy"`

	// DeviceID is the patient device analyzed
	DeviceID string `parquet:"device_id,snappy"`

	// TimeFrom is the start of the analysis window
	TimeFrom time.Time `parquet:"time_from,snappy"`

	// TimeTo is the end of the analysis window
	TimeTo time.Time `parquet:"time_to,snappy"`

	// StartedAt is when the run began
	StartedAt time.Time `parquet:"started_at,snappy"`

	// DurationMS is the run duration in milliseconds
	DurationMS int64 `parquet:"duration_ms,snappy"`

	// PeerCount is the number of peers with reportable contacts
	PeerCount int32 `parquet:"peer_count,snappy"`

	// ContactCount is the total number of detected contacts
	ContactCount int32 `parquet:"contact_count,snappy"`

	// ErrorCount is the number of peers whose analysis failed
	ErrorCount int32 `parquet:"error_count,snappy"`
}

func summaryRow(device schema.DeviceID, section, date string, s schema.ContactListSummary) ReportRow {
	return ReportRow{
		Device:                    string(device),
		Section:                   section,
		Date:                      date,
		Contacts:                  int32(s.NumberOfContacts),
		Duration:                  s.CumulativeDuration,
		RiskScore:                 s.CumulativeRiskScore,
		RiskCategory:              string(s.RiskCategory),
		MedianDistance:            s.MedianDistance,
		DurationInside:            s.CumulativeDurationInside,
		DurationOutside:           s.CumulativeDurationOutside,
		DurationUncertain:         s.CumulativeDurationUncertain,
		BTVeryCloseDuration:       s.BTVeryCloseDuration,
		BTCloseDuration:           s.BTCloseDuration,
		BTRelativelyCloseDuration: s.BTRelativelyCloseDuration,
		DaysInContact:             int32(s.DaysInContact),
	}
}

func sectionRows(device schema.DeviceID, date string, sec schema.CumulativeSection) []ReportRow {
	rows := []ReportRow{summaryRow(device, AllSection, date, sec.AllContacts)}
	if sec.GPSContacts != nil {
		rows = append(rows, summaryRow(device, GPSSection, date, *sec.GPSContacts))
	}
	if sec.BTContacts != nil {
		rows = append(rows, summaryRow(device, BTSection, date, *sec.BTContacts))
	}
	return rows
}

// ConvertReport flattens a per-peer report into rows, ordered by peer.
func ConvertReport(report *schema.Report) []ReportRow {
	var rows []ReportRow
	for _, device := range sortedPeers(report.Contacts) {
		peer := report.Contacts[device]
		rows = append(rows, summaryRow(device, AllSection, "", peer.ContactListSummary))
		if peer.GPSContacts != nil {
			rows = append(rows, summaryRow(device, GPSSection, "", *peer.GPSContacts))
		}
		if peer.BTContacts != nil {
			rows = append(rows, summaryRow(device, BTSection, "", *peer.BTContacts))
		}
	}
	return rows
}

// ConvertDailyReport flattens a daily report into rows: the cumulative
// sections first, then one row group per day in ascending date order.
func ConvertDailyReport(report *schema.DailyReport) []ReportRow {
	var rows []ReportRow
	for _, device := range sortedPeers(report.Contacts) {
		peer := report.Contacts[device]
		rows = append(rows, sectionRows(device, "", peer.Cumulative)...)
		for _, date := range peer.SortedDates() {
			rows = append(rows, sectionRows(device, date, peer.Daily[date])...)
		}
	}
	return rows
}

// ConvertRuns maps tracked analysis runs to export rows.
func ConvertRuns(runs []schema.AnalysisRun) []RunRow {
	rows := make([]RunRow, len(runs))
	for i, run := range runs {
		rows[i] = RunRow{
			RunID:        run.RunID,
			DeviceID:     string(run.DeviceID),
			TimeFrom:     run.TimeFrom,
			TimeTo:       run.TimeTo,
			StartedAt:    run.StartedAt,
			DurationMS:   run.DurationMS,
			PeerCount:    int32(run.PeerCount),
			ContactCount: int32(run.ContactCount),
			ErrorCount:   int32(run.ErrorCount),
		}
	}
	return rows
}

func sortedPeers[V any](contacts map[schema.DeviceID]V) []schema.DeviceID {
	peers := make([]schema.DeviceID, 0, len(contacts))
	for device := range contacts {
		peers = append(peers, device)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// WriteReportRows writes flattened report rows to a Parquet file.
func WriteReportRows(rows []ReportRow, outputPath string) error {
	return writeRows(rows, outputPath)
}

// WriteRunRows writes analysis run rows to a Parquet file.
func WriteRunRows(rows []RunRow, outputPath string) error {
	return writeRows(rows, outputPath)
}

func writeRows[T any](rows []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is derived from the row struct tags.
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	return writer.Close()
}
