package outwriter

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/parquet"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// writeReportResults outputs a per-peer report, dispatching based on the
// output format configured.
func writeReportResults(report *schema.Report, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "JSON")
	case schema.ParquetOut:
		if cfg.OutputFile == "" {
			return errors.New("--output-file is required for parquet output")
		}
		return parquet.WriteReportRows(parquet.ConvertReport(report), cfg.OutputFile)
	default:
		// Default to human-readable table
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportTable(report, cfg, duration, w)
		}, "table")
	}
}

// writeDailyReportResults outputs a daily report, dispatching based on
// the output format configured.
func writeDailyReportResults(report *schema.DailyReport, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "JSON")
	case schema.ParquetOut:
		if cfg.OutputFile == "" {
			return errors.New("--output-file is required for parquet output")
		}
		return parquet.WriteReportRows(parquet.ConvertDailyReport(report), cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeDailyReportTable(report, cfg, duration, w)
		}, "table")
	}
}

// writeReportTable generates and writes the human-readable per-peer table.
func writeReportTable(report *schema.Report, cfg *contract.Config, duration time.Duration, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)

	// 1. Define Headers
	headers := []string{"Peer", "Section", "Contacts", "Duration", "Risk", "Category"}
	if cfg.Detail {
		headers = append(headers, "Median Dist", "Inside", "Outside")
	}
	table.Header(headers)

	// 2. Configure Separators/Borders to match a minimal look
	table.Configure(func(tcfg *tablewriter.Config) {
		tcfg.Row.Alignment.Global = tw.AlignRight
	})

	// 3. Populate Rows
	maxWidth := getMaxTableDeviceWidth(cfg)
	var data [][]string
	totalContacts := 0
	for _, device := range sortedReportPeers(report.Contacts) {
		peer := report.Contacts[device]
		totalContacts += peer.NumberOfContacts
		data = append(data, summaryTableRow(contract.TruncateDeviceID(device, maxWidth), "all", peer.ContactListSummary, cfg))
		if peer.GPSContacts != nil {
			data = append(data, summaryTableRow("", "gps", *peer.GPSContacts, cfg))
		}
		if peer.BTContacts != nil {
			data = append(data, summaryTableRow("", "bt", *peer.BTContacts, cfg))
		}
	}

	// 4. Render the table
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Showing %d reportable peers (total contacts: %d)\n", len(report.Contacts), totalContacts); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Analysis completed in %v with %d workers. Cache backend: %s\n", duration, cfg.Workers, cfg.CacheBackend); err != nil {
		return err
	}
	return nil
}

// writeDailyReportTable generates and writes the human-readable daily table.
func writeDailyReportTable(report *schema.DailyReport, cfg *contract.Config, duration time.Duration, writer io.Writer) error {
	maxWidth := getMaxTableDeviceWidth(cfg)
	for _, device := range sortedReportPeers(report.Contacts) {
		peer := report.Contacts[device]
		if _, err := fmt.Fprintf(writer, "Peer %s (%d days in contact)\n",
			contract.TruncateDeviceID(device, maxWidth), peer.DaysInContact); err != nil {
			return err
		}

		table := tablewriter.NewWriter(writer)
		headers := []string{"Day", "Section", "Contacts", "Duration", "Risk", "Category"}
		if cfg.Detail {
			headers = append(headers, "Median Dist", "Inside", "Outside")
		}
		table.Header(headers)
		table.Configure(func(tcfg *tablewriter.Config) {
			tcfg.Row.Alignment.Global = tw.AlignRight
		})

		var data [][]string
		data = append(data, cumulativeSectionRows("cumulative", peer.Cumulative, cfg)...)
		for _, date := range peer.SortedDates() {
			data = append(data, cumulativeSectionRows(date, peer.Daily[date], cfg)...)
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(writer, "Showing %d reportable peers\n", len(report.Contacts)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Analysis completed in %v with %d workers. Cache backend: %s\n", duration, cfg.Workers, cfg.CacheBackend); err != nil {
		return err
	}
	return nil
}

// summaryTableRow renders one contact summary as table cells.
func summaryTableRow(label, section string, s schema.ContactListSummary, cfg *contract.Config) []string {
	row := []string{
		label,
		section,
		strconv.Itoa(s.NumberOfContacts),
		formatSeconds(s.CumulativeDuration),
		fmt.Sprintf("%.2f", s.CumulativeRiskScore),
		contract.GetColorCategory(s.RiskCategory),
	}
	if cfg.Detail {
		row = append(row,
			fmt.Sprintf("%.1fm", s.MedianDistance),
			formatSeconds(s.CumulativeDurationInside),
			formatSeconds(s.CumulativeDurationOutside),
		)
	}
	return row
}

func cumulativeSectionRows(label string, sec schema.CumulativeSection, cfg *contract.Config) [][]string {
	rows := [][]string{summaryTableRow(label, "all", sec.AllContacts, cfg)}
	if sec.GPSContacts != nil {
		rows = append(rows, summaryTableRow("", "gps", *sec.GPSContacts, cfg))
	}
	if sec.BTContacts != nil {
		rows = append(rows, summaryTableRow("", "bt", *sec.BTContacts, cfg))
	}
	return rows
}

// formatSeconds renders a duration in seconds compactly for tables.
func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func sortedReportPeers[V any](contacts map[schema.DeviceID]V) []schema.DeviceID {
	peers := make([]schema.DeviceID, 0, len(contacts))
	for device := range contacts {
		peers = append(peers, device)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}
