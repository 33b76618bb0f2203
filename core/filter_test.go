package core

import (
	"context"
	"testing"
	"time"

	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFilterNested tests selector composition over nested documents.
func TestFilterNested(t *testing.T) {
	doc := map[string]any{
		"peer-1": map[string]any{
			"keep":   1.0,
			"secret": 2.0,
			"nested": map[string]any{"a": 1.0, "b": 2.0},
		},
		"peer-2": map[string]any{
			"keep": 3.0,
		},
	}

	t.Run("keys at depth", func(t *testing.T) {
		out := FilterNested(doc, []Rule{{SelectAll(), SelectKeys("keep")}})
		assert.Equal(t, map[string]any{
			"peer-1": map[string]any{"keep": 1.0},
			"peer-2": map[string]any{"keep": 3.0},
		}, out)
	})

	t.Run("nested selection", func(t *testing.T) {
		out := FilterNested(doc, []Rule{{SelectAll(), SelectKeys("nested"), SelectKeys("a")}})
		assert.Equal(t, map[string]any{
			"peer-1": map[string]any{"nested": map[string]any{"a": 1.0}},
		}, out)
	})

	t.Run("exclusion", func(t *testing.T) {
		out := FilterNested(doc, []Rule{{SelectKeys("peer-2"), SelectNot("keep")}})
		assert.Empty(t, out)
	})

	t.Run("predicate matching", func(t *testing.T) {
		out := FilterNested(doc, []Rule{{SelectAll(), SelectMatch(func(k string) bool {
			return k == "secret"
		})}})
		assert.Equal(t, map[string]any{
			"peer-1": map[string]any{"secret": 2.0},
		}, out)
	})

	t.Run("multiple rules union", func(t *testing.T) {
		out := FilterNested(doc, []Rule{
			{SelectAll(), SelectKeys("keep")},
			{SelectAll(), SelectKeys("secret")},
		})
		assert.Equal(t, map[string]any{
			"peer-1": map[string]any{"keep": 1.0, "secret": 2.0},
			"peer-2": map[string]any{"keep": 3.0},
		}, out)
	})

	t.Run("rules deeper than the document select nothing", func(t *testing.T) {
		out := FilterNested(doc, []Rule{{SelectKeys("peer-2"), SelectKeys("keep"), SelectKeys("x")}})
		assert.Empty(t, out)
	})
}

// TestFilterDailyReport tests the delivery whitelist on a real daily
// report.
func TestFilterDailyReport(t *testing.T) {
	start := time.Date(2020, time.April, 1, 12, 0, 0, 0, time.UTC).Unix()
	graph := NewContactGraph(patient)
	graph.AddContacts(peerA, ContactList{btContact(start, 900, 600, 0)})

	builder := &ReportBuilder{Params: schema.DefaultParams(), Version: "1.0.0"}
	report, err := builder.BuildDaily(context.Background(), graph)
	require.NoError(t, err)

	doc, err := FilterDailyReport(report)
	require.NoError(t, err)

	assert.Contains(t, doc, "version_info")
	contacts, ok := doc["contacts"].(map[string]any)
	require.True(t, ok)
	peer, ok := contacts[string(peerA)].(map[string]any)
	require.True(t, ok)

	cumulative, ok := peer["cumulative"].(map[string]any)
	require.True(t, ok)

	t.Run("all contacts keeps only whitelisted fields", func(t *testing.T) {
		all, ok := cumulative["all_contacts"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, all, "number_of_contacts")
		assert.Contains(t, all, "risk_cat")
		assert.NotContains(t, all, "median_distance")
		assert.NotContains(t, all, "cumulative_duration_inside")
	})

	t.Run("bt section keeps durations and phase fields", func(t *testing.T) {
		bt, ok := cumulative["bt_contacts"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, bt, "cumulative_duration")
		assert.Contains(t, bt, "cumulative_risk_score")
		assert.Contains(t, bt, "bt_very_close_duration")
		assert.NotContains(t, bt, "risk_cat")
	})

	t.Run("daily sections are reduced", func(t *testing.T) {
		daily, ok := peer["daily"].(map[string]any)
		require.True(t, ok)
		day, ok := daily["2020-04-01"].(map[string]any)
		require.True(t, ok)
		bt, ok := day["bt_contacts"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, bt, "cumulative_duration")
		assert.Contains(t, bt, "number_of_contacts")
		assert.NotContains(t, bt, "cumulative_risk_score")
	})
}
