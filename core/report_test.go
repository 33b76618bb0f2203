package core

import (
	"context"
	"testing"
	"time"

	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReportBuilderBuild tests report assembly and inclusion rules.
func TestReportBuilderBuild(t *testing.T) {
	params := schema.DefaultParams()

	t.Run("reportable peers get typed sections", func(t *testing.T) {
		graph := NewContactGraph(patient)
		graph.AddContacts(peerA, ContactList{btContact(1000, 600, 0, 0)})

		builder := &ReportBuilder{Params: params, Version: "1.0.0"}
		report, err := builder.Build(context.Background(), graph)
		require.NoError(t, err)
		require.Contains(t, report.Contacts, peerA)

		peer := report.Contacts[peerA]
		assert.Equal(t, 1, peer.NumberOfContacts)
		assert.Equal(t, 600.0, peer.CumulativeDuration)
		assert.Equal(t, 600.0, peer.BTVeryCloseDuration)
		assert.Equal(t, schema.BTBelow15Min, peer.RiskCategory)
		require.NotNil(t, peer.BTContacts)
		assert.Nil(t, peer.GPSContacts)
		require.Len(t, peer.BTContacts.ContactDetails, 1)
		assert.Equal(t, schema.BTContactType, peer.BTContacts.ContactDetails[0].Type)
		assert.Equal(t, "1.0.0", report.VersionInfo.Pipeline)
	})

	t.Run("peers below the thresholds are excluded", func(t *testing.T) {
		graph := NewContactGraph(patient)
		graph.AddContacts(peerA, ContactList{btContact(1000, 60, 0, 0)})

		builder := &ReportBuilder{Params: params}
		report, err := builder.Build(context.Background(), graph)
		require.NoError(t, err)
		assert.Empty(t, report.Contacts)
	})

	t.Run("testing mode bypasses the thresholds", func(t *testing.T) {
		graph := NewContactGraph(patient)
		graph.AddContacts(peerA, ContactList{btContact(1000, 60, 0, 0)})

		builder := &ReportBuilder{Params: params, Testing: true}
		report, err := builder.Build(context.Background(), graph)
		require.NoError(t, err)
		assert.Contains(t, report.Contacts, peerA)
	})

	t.Run("feature lookup failures do not abort the report", func(t *testing.T) {
		graph := NewContactGraph(patient)
		graph.AddContacts(peerA, ContactList{walkingBTContact(t)})

		builder := &ReportBuilder{
			Params:   params,
			Resolver: NewPOIResolver(&fakeFeatures{err: assert.AnError}, params.POIs),
			Testing:  true,
		}
		report, err := builder.Build(context.Background(), graph)
		require.NoError(t, err)
		require.Contains(t, report.Contacts, peerA)
		assert.Zero(t, report.Contacts[peerA].CumulativeDurationInside)
	})

	t.Run("unresolved contacts are fully uncertain", func(t *testing.T) {
		graph := NewContactGraph(patient)
		graph.AddContacts(peerA, ContactList{btContact(1000, 600, 0, 0)})

		builder := &ReportBuilder{Params: params}
		report, err := builder.Build(context.Background(), graph)
		require.NoError(t, err)
		peer := report.Contacts[peerA]
		assert.Equal(t, 600.0, peer.CumulativeDurationUncertain)
		assert.Zero(t, peer.CumulativeDurationInside)
	})
}

// TestReportBuilderBuildDaily tests day splitting and the days-in-contact
// counters.
func TestReportBuilderBuildDaily(t *testing.T) {
	params := schema.DefaultParams()
	start := time.Date(2020, time.April, 1, 23, 0, 0, 0, time.UTC).Unix()

	graph := NewContactGraph(patient)
	// Four hours very close, running past 02:00 the next morning.
	graph.AddContacts(peerA, ContactList{btContact(start, 4*3600, 0, 0)})

	builder := &ReportBuilder{Params: params, Version: "1.0.0"}
	report, err := builder.BuildDaily(context.Background(), graph)
	require.NoError(t, err)
	require.Contains(t, report.Contacts, peerA)

	peer := report.Contacts[peerA]
	assert.Equal(t, 2, peer.DaysInContact)
	assert.Equal(t, []string{"2020-04-01", "2020-04-02"}, peer.SortedDates())
	assert.Equal(t, 2, peer.Cumulative.AllContacts.DaysInContact)
	assert.Equal(t, 4*3600.0, peer.Cumulative.AllContacts.CumulativeDuration)
	require.NotNil(t, peer.Cumulative.BTContacts)
	assert.Equal(t, 2, peer.Cumulative.BTContacts.DaysInContact)
	require.NotNil(t, peer.Cumulative.GPSContacts)
	assert.Zero(t, peer.Cumulative.GPSContacts.DaysInContact)

	day := peer.Daily["2020-04-02"]
	assert.Equal(t, 3600.0, day.AllContacts.CumulativeDuration)
	assert.Equal(t, 3600.0, day.BTContacts.CumulativeDuration)
}

// TestSummaryDetails tests per-contact rows in a detailed summary.
func TestSummaryDetails(t *testing.T) {
	builder := &ReportBuilder{Params: schema.DefaultParams()}
	list := ContactList{btContact(1000, 300, 300, 0)}

	summary := builder.Summary(list, true)
	require.Len(t, summary.ContactDetails, 1)
	row := summary.ContactDetails[0]
	assert.Equal(t, int64(1000), row.TimeFrom)
	assert.Equal(t, int64(1600), row.TimeTo)
	assert.Equal(t, 600.0, row.Duration)
	assert.Equal(t, 300.0, row.VeryCloseDuration)
	assert.Equal(t, 600.0, row.UncertainDuration)
	assert.InDelta(t, 6.25, row.RiskScore, 1e-9)

	t.Run("summary rounds the risk score", func(t *testing.T) {
		assert.Equal(t, 6.25, summary.CumulativeRiskScore)
	})

	t.Run("plain summary carries no rows", func(t *testing.T) {
		assert.Empty(t, builder.Summary(list, false).ContactDetails)
	})
}
