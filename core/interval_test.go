package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsolate tests the overlap resolution policies.
func TestIsolate(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Isolate(nil))
	})

	t.Run("disjoint events pass through sorted", func(t *testing.T) {
		events := []Event{
			{Start: 500, Duration: 100, Close: 100},
			{Start: 0, Duration: 100, VeryClose: 100},
		}
		out := Isolate(events)
		require.Len(t, out, 2)
		assert.Equal(t, int64(0), out[0].Start)
		assert.Equal(t, int64(500), out[1].Start)
	})

	t.Run("identical events take the per-phase maximum", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, VeryClose: 40, Close: 60},
			{Start: 0, Duration: 100, VeryClose: 70, Close: 10},
		}
		out := Isolate(events)
		require.Len(t, out, 1)
		assert.Equal(t, Event{Start: 0, Duration: 100, VeryClose: 70, Close: 60}, out[0])
	})

	t.Run("contained events take the per-phase maximum", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 200, Close: 100},
			{Start: 50, Duration: 50, Close: 50, VeryClose: 25},
		}
		out := Isolate(events)
		require.Len(t, out, 1)
		assert.Equal(t, Event{Start: 0, Duration: 200, VeryClose: 25, Close: 100}, out[0])
	})

	t.Run("partial overlap blends per-phase rates", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, VeryClose: 50},
			{Start: 50, Duration: 100, VeryClose: 100},
		}
		out := Isolate(events)
		require.Len(t, out, 1)
		// 50s at rate 0.5, 50s overlapped at max(0.5, 1.0), 50s at rate 1.0.
		assert.Equal(t, int64(0), out[0].Start)
		assert.Equal(t, 150.0, out[0].Duration)
		assert.InDelta(t, 125.0, out[0].VeryClose, 1e-9)
	})

	t.Run("back-to-back events count as overlapping", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, Close: 100},
			{Start: 100, Duration: 50, Close: 50},
		}
		out := Isolate(events)
		require.Len(t, out, 1)
		assert.Equal(t, 150.0, out[0].Duration)
		assert.InDelta(t, 150.0, out[0].Close, 1e-9)
	})

	t.Run("output is disjoint regardless of input order", func(t *testing.T) {
		events := []Event{
			{Start: 300, Duration: 100, Close: 100},
			{Start: 0, Duration: 150, VeryClose: 150},
			{Start: 100, Duration: 100, Close: 100},
		}
		out := Isolate(events)
		for i := 1; i < len(out); i++ {
			assert.True(t, out[i-1].disjoint(out[i]))
			assert.Less(t, out[i-1].Start, out[i].Start)
		}
	})
}

// TestGlue tests chaining of nearby events.
func TestGlue(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Glue(nil, 180))
	})

	t.Run("sums all phases below the gap", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, VeryClose: 60, Close: 30, RelativelyClose: 10},
			{Start: 200, Duration: 50, VeryClose: 10, Close: 20, RelativelyClose: 20},
		}
		out := Glue(events, 180)
		require.Len(t, out, 1)
		assert.Equal(t, Event{
			Start: 0, Duration: 150,
			VeryClose: 70, Close: 50, RelativelyClose: 30,
		}, out[0])
	})

	t.Run("keeps events apart at or above the gap", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, Close: 100},
			{Start: 280, Duration: 50, Close: 50},
		}
		out := Glue(events, 180)
		assert.Len(t, out, 2)
	})

	t.Run("zero gap never glues", func(t *testing.T) {
		events := []Event{
			{Start: 0, Duration: 100, Close: 100},
			{Start: 100, Duration: 50, Close: 50},
		}
		out := Glue(events, 0)
		assert.Len(t, out, 2)
	})
}

// TestEventEnd tests end time derivation.
func TestEventEnd(t *testing.T) {
	assert.Equal(t, int64(160), Event{Start: 100, Duration: 60}.End())
}
