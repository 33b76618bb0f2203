package core

import (
	"context"
	"math"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Aggregate POI filtering over a whole contact list uses a longer floor
// than the per-contact filtering.
const (
	listPOIProportion   = 0.2
	listPOIDuration     = 180
	listPOILongDuration = 300
)

// ReportBuilder turns a contact graph into the report structures.
// A nil resolver leaves every contact fully uncertain.
type ReportBuilder struct {
	Resolver *POIResolver
	Params   schema.AnalysisParams
	Version  string
	Device   *schema.DeviceInfo

	// Testing includes peers below the reporting thresholds.
	Testing bool
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// resolve fills the POI cache of every contact in the list.
func (b *ReportBuilder) resolve(ctx context.Context, l ContactList) error {
	if b.Resolver == nil {
		return nil
	}
	for _, c := range l {
		if err := b.Resolver.Resolve(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Summary aggregates a contact list. Individual contact rows are
// attached when details is set.
func (b *ReportBuilder) Summary(l ContactList, details bool) schema.ContactListSummary {
	inside, outside, uncertain := l.CumulativePOIDurations()
	phases := l.CumulativePhaseDurations()
	summary := schema.ContactListSummary{
		CumulativeDuration:          l.CumulativeDuration(),
		CumulativeRiskScore:         round2(l.CumulativeRiskScore()),
		NumberOfContacts:            len(l),
		CumulativeDurationInside:    inside,
		CumulativeDurationOutside:   outside,
		CumulativeDurationUncertain: uncertain,
		PointsOfInterest:            l.MostCommonPOIs(listPOIProportion, listPOIDuration, listPOILongDuration),
		RiskCategory:                l.RiskCategory(),
		BTVeryCloseDuration:         phases[0],
		BTCloseDuration:             phases[1],
		BTRelativelyCloseDuration:   phases[2],
	}
	if len(l) > 0 {
		summary.MedianDistance = l.MedianDistance()
	}
	if details {
		summary.ContactDetails = make([]schema.ContactDetailRow, len(l))
		for i, c := range l {
			summary.ContactDetails[i] = b.detailRow(c)
		}
	}
	return summary
}

// detailRow describes one contact inside a summary.
func (b *ReportBuilder) detailRow(c Contact) schema.ContactDetailRow {
	row := schema.ContactDetailRow{
		Type:                     c.Type(),
		TimeFrom:                 c.StartTime(),
		TimeTo:                   c.EndTime(),
		Duration:                 c.Duration(),
		AverageDistance:          c.AverageDistance(),
		MedianDistance:           c.MedianDistance(),
		AverageAccuracy:          c.AverageAccuracy(),
		RiskScore:                c.RiskScore(),
		MostCommonTransportModes: MostCommonTransportModes(c),
		VeryCloseDuration:        c.VeryCloseDuration(),
		CloseDuration:            c.CloseDuration(),
		RelativelyCloseDuration:  c.RelativelyCloseDuration(),
	}
	if res := c.poiResult(); res != nil {
		row.POIs = res.Filtered
		row.DurationInside = res.Inside
		row.DurationOutside = res.Outside
		row.UncertainDuration = res.Uncertain
	} else {
		row.UncertainDuration = c.Duration()
	}
	return row
}

// Build assembles the per-contact report: one section per reportable
// peer with the typed sub-lists carrying individual contact rows.
func (b *ReportBuilder) Build(ctx context.Context, graph *ContactGraph) (*schema.Report, error) {
	report := &schema.Report{
		Contacts: make(map[schema.DeviceID]schema.PeerReport),
		VersionInfo: schema.VersionInfo{
			Pipeline: b.Version,
			Device:   b.Device,
		},
	}
	for _, peer := range graph.Peers() {
		edge := graph.Edges[peer]
		if !b.Testing && !edge.IncludeInReport() {
			continue
		}
		if err := b.resolve(ctx, edge); err != nil {
			return nil, err
		}
		peerReport := schema.PeerReport{
			ContactListSummary: b.Summary(edge, false),
		}
		if gps := edge.Filter(0, schema.GPSContactType); len(gps) > 0 {
			summary := b.Summary(gps, true)
			peerReport.GPSContacts = &summary
		}
		if bt := edge.Filter(0, schema.BTContactType); len(bt) > 0 {
			summary := b.Summary(bt, true)
			peerReport.BTContacts = &summary
		}
		report.Contacts[peer] = peerReport
	}
	return report, nil
}

// BuildDaily assembles the day-by-day report: contacts are split at the
// day boundaries and re-filtered by the minimum durations, and the
// cumulative sections record how many days had contact.
func (b *ReportBuilder) BuildDaily(ctx context.Context, graph *ContactGraph) (*schema.DailyReport, error) {
	report := &schema.DailyReport{
		Contacts: make(map[schema.DeviceID]schema.DailyPeerReport),
		VersionInfo: schema.VersionInfo{
			Pipeline: b.Version,
			Device:   b.Device,
		},
	}
	for _, peer := range graph.Peers() {
		edge := graph.Edges[peer]
		if !b.Testing && !edge.IncludeInReport() {
			continue
		}
		if err := b.resolve(ctx, edge); err != nil {
			return nil, err
		}
		days, err := edge.SplitByDays()
		if err != nil {
			return nil, err
		}

		peerReport := schema.DailyPeerReport{
			Daily: make(map[string]schema.CumulativeSection, len(days)),
		}
		var gpsDays, btDays, contactDays int
		for _, day := range SortedDays(days) {
			gpsDay := days[day].Filter(b.Params.MinDuration, schema.GPSContactType)
			btDay := days[day].Filter(b.Params.BTMinDuration, schema.BTContactType)
			allDay := append(append(ContactList{}, gpsDay...), btDay...)
			if err := b.resolve(ctx, allDay); err != nil {
				return nil, err
			}
			gpsSummary := b.Summary(gpsDay, false)
			btSummary := b.Summary(btDay, false)
			peerReport.Daily[day] = schema.CumulativeSection{
				AllContacts: b.Summary(allDay, false),
				GPSContacts: &gpsSummary,
				BTContacts:  &btSummary,
			}
			if len(gpsDay) > 0 {
				gpsDays++
			}
			if len(btDay) > 0 {
				btDays++
			}
			if len(gpsDay) > 0 || len(btDay) > 0 {
				contactDays++
			}
		}

		all := b.Summary(edge, false)
		all.DaysInContact = contactDays
		gpsSummary := b.Summary(edge.Filter(0, schema.GPSContactType), false)
		gpsSummary.DaysInContact = gpsDays
		btSummary := b.Summary(edge.Filter(0, schema.BTContactType), false)
		btSummary.DaysInContact = btDays
		peerReport.Cumulative = schema.CumulativeSection{
			AllContacts: all,
			GPSContacts: &gpsSummary,
			BTContacts:  &btSummary,
		}
		peerReport.DaysInContact = contactDays
		report.Contacts[peer] = peerReport
	}
	return report, nil
}
