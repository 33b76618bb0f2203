package core

import (
	"context"
	"testing"

	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeatures returns the same candidate list for every query point,
// or a fixed error.
type fakeFeatures struct {
	features []schema.Feature
	err      error
	calls    int
}

func (f *fakeFeatures) QueryPoints(_ context.Context, points []schema.FeaturePoint, _ []string) ([][]schema.Feature, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]schema.Feature, len(points))
	for i := range points {
		out[i] = f.features
	}
	return out, nil
}

// TestCategoryFromTags tests the tag to category mapping.
func TestCategoryFromTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{"amenity lookup", map[string]string{"amenity": "restaurant"}, schema.CategoryBarsAndRestaurants},
		{"amenity fallback", map[string]string{"amenity": "fountain"}, schema.CategoryOtherBuildings},
		{"building lookup", map[string]string{"building": "church"}, schema.CategoryReligious},
		{"generic building with type", map[string]string{"building": "yes", "building:type": "school"}, schema.CategorySchool},
		{"generic building with use", map[string]string{"building": "yes", "building:use": "hospital"}, schema.CategoryHospital},
		{"generic building without hints", map[string]string{"building": "yes"}, schema.CategoryOtherBuildings},
		{"shop", map[string]string{"shop": "bakery"}, schema.CategoryShop},
		{"public transport", map[string]string{"public_transport": "platform"}, schema.CategoryTransportStop},
		{"office", map[string]string{"office": "it"}, schema.CategoryOffice},
		{"nothing known", map[string]string{"landuse": "grass"}, schema.CategoryOtherBuildings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromTags(tt.tags))
		})
	}
}

// TestRadiusFactor tests the transport pair scaling table.
func TestRadiusFactor(t *testing.T) {
	r := NewPOIResolver(nil, schema.DefaultParams().POIs)

	tests := []struct {
		name     string
		m1, m2   schema.TransportMode
		expected float64
	}{
		{"both still", schema.StillTransport, schema.StillTransport, 1.1},
		{"still and unknown", schema.StillTransport, schema.UnknownTransport, 0.9},
		{"still and on foot", schema.StillTransport, schema.OnFootTransport, 0.9},
		{"both on foot", schema.OnFootTransport, schema.OnFootTransport, 0.65},
		{"on foot and unknown", schema.OnFootTransport, schema.UnknownTransport, 0.65},
		{"vehicle involved", schema.VehicleTransport, schema.StillTransport, 0.0},
		{"both unknown", schema.UnknownTransport, schema.UnknownTransport, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.radiusFactor(tt.m1, tt.m2))
		})
	}
}

// TestConsecutiveRuns tests index run grouping.
func TestConsecutiveRuns(t *testing.T) {
	tests := []struct {
		name     string
		indices  []int
		expected [][2]int
	}{
		{"empty", nil, nil},
		{"single run", []int{2, 3, 4}, [][2]int{{2, 5}}},
		{"two runs", []int{0, 1, 5, 6}, [][2]int{{0, 2}, {5, 7}}},
		{"singletons", []int{1, 3, 5}, [][2]int{{1, 2}, {3, 4}, {5, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, consecutiveRuns(tt.indices))
		})
	}
}

// TestDurationOfContact tests half-interval weighting with the cap.
func TestDurationOfContact(t *testing.T) {
	times := []int64{0, 100, 200, 1000}

	t.Run("interior run uses half intervals", func(t *testing.T) {
		// Lower edge (0+100)/2, upper edge capped at 200+120.
		assert.InDelta(t, 270.0, durationOfContact(times, 1, 3), 1e-9)
	})

	t.Run("boundary run uses the endpoints", func(t *testing.T) {
		assert.InDelta(t, 150.0, durationOfContact(times, 0, 2), 1e-9)
	})

	t.Run("empty run", func(t *testing.T) {
		assert.Zero(t, durationOfContact(times, 2, 2))
		assert.Zero(t, durationOfContact(nil, 0, 1))
	})
}

// TestResolveWithoutEvidence tests the fully uncertain path.
func TestResolveWithoutEvidence(t *testing.T) {
	r := NewPOIResolver(&fakeFeatures{}, schema.DefaultParams().POIs)
	c := btContact(1000, 600, 0, 0)

	require.NoError(t, r.Resolve(context.Background(), c))
	res := c.poiResult()
	require.NotNil(t, res)
	assert.Equal(t, map[string]float64{schema.CategoryNA: 600}, res.POIs)
	assert.Equal(t, 600.0, res.Uncertain)
	assert.Zero(t, res.Inside)
}

// walkingBTContact builds a Bluetooth contact during a slow walk,
// annotated on foot on both sides.
func walkingBTContact(t *testing.T) Contact {
	t.Helper()
	samples := func() []schema.Sample {
		var out []schema.Sample
		for i := int64(0); i <= 600; i += 60 {
			out = append(out, schema.Sample{
				Time:      1000 + i,
				Lat:       59.9000,
				Lon:       10.7000,
				Accuracy:  10,
				Transport: schema.OnFootTransport,
			})
		}
		return out
	}
	t1 := NewTrajectory(samples(), 0)
	t2 := NewTrajectory(samples(), 0)
	ev := Event{Start: 1000, VeryClose: 600}
	c := NewBTContact(t1, t2, ev, schema.DefaultParams())
	require.NotZero(t, c.DurationWithGPS())
	return c
}

// TestResolveNormalization tests that the POI durations sum to the
// contact duration.
func TestResolveNormalization(t *testing.T) {
	features := &fakeFeatures{features: []schema.Feature{
		{ID: 42, Kind: "way", Tags: map[string]string{"shop": "bakery"}},
	}}
	r := NewPOIResolver(features, schema.DefaultParams().POIs)
	c := walkingBTContact(t)

	require.NoError(t, r.Resolve(context.Background(), c))
	res := c.poiResult()
	require.NotNil(t, res)

	assert.InDelta(t, c.Duration(), res.Inside+res.Outside+res.Uncertain, 1e-6)
	assert.Positive(t, features.calls)
	assert.Contains(t, res.POIs, schema.CategoryShop)

	t.Run("resolution is cached", func(t *testing.T) {
		calls := features.calls
		require.NoError(t, r.Resolve(context.Background(), c))
		assert.Equal(t, calls, features.calls)
	})
}

// TestResolveFeatureServiceFailure tests that lookup errors degrade the
// contact to unmatched surroundings instead of failing it.
func TestResolveFeatureServiceFailure(t *testing.T) {
	features := &fakeFeatures{err: assert.AnError}
	r := NewPOIResolver(features, schema.DefaultParams().POIs)
	c := walkingBTContact(t)

	require.NoError(t, r.Resolve(context.Background(), c))
	res := c.poiResult()
	require.NotNil(t, res)

	assert.Positive(t, features.calls)
	assert.Zero(t, res.Inside)
	assert.NotContains(t, res.POIs, schema.CategoryShop)
	assert.InDelta(t, c.Duration(), res.Inside+res.Outside+res.Uncertain, 1e-6)
}
