package core

import (
	"testing"

	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFilterOpts() schema.FilterOptions {
	return schema.DefaultParams().Filter
}

// TestWeightAccuracy tests the piecewise accuracy weighting.
func TestWeightAccuracy(t *testing.T) {
	opts := defaultFilterOpts()

	tests := []struct {
		name     string
		accuracy float64
		expected float64
	}{
		{"very accurate gets full weight", 5, 1.0},
		{"boundary of full weight", 10, 1.0},
		{"midpoint of the linear ramp", 55, 0.5},
		{"boundary of minimum weight", 100, 0.05},
		{"far beyond the maximum", 500, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, weightAccuracy(tt.accuracy, opts), 1e-9)
		})
	}
}

// TestSubstituteNeighbor tests neighbor lookup when the center weight
// bottomed out.
func TestSubstituteNeighbor(t *testing.T) {
	opts := defaultFilterOpts()
	path := []TrackPoint{
		{Lat: 59.9, Lon: 10.7, Accuracy: 5},
		{Lat: 59.9, Lon: 10.7, Accuracy: 200},
		{Lat: 59.9, Lon: 10.7, Accuracy: 5},
	}

	t.Run("substitutes a better neighbor at minimum weight", func(t *testing.T) {
		idx, w := substituteNeighbor(path, 1, opts.WeightMinVal, opts)
		assert.Equal(t, 0, idx)
		assert.InDelta(t, 1.0, w, 1e-9)
	})

	t.Run("keeps the center above the minimum weight", func(t *testing.T) {
		idx, w := substituteNeighbor(path, 0, 1.0, opts)
		assert.Equal(t, 0, idx)
		assert.InDelta(t, 1.0, w, 1e-9)
	})

	t.Run("skips undefined neighbors", func(t *testing.T) {
		sparse := []TrackPoint{
			{},
			{Lat: 59.9, Lon: 10.7, Accuracy: 200},
			{},
		}
		idx, w := substituteNeighbor(sparse, 1, opts.WeightMinVal, opts)
		assert.Equal(t, 1, idx)
		assert.InDelta(t, opts.WeightMinVal, w, 1e-9)
	})
}

// TestConvolutionFilter tests the windowed estimate and its sentinel.
func TestConvolutionFilter(t *testing.T) {
	opts := defaultFilterOpts()

	t.Run("identical paths yield zero distance", func(t *testing.T) {
		path := []TrackPoint{
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9001, Lon: 10.7001, Accuracy: 5},
			{Lat: 59.9002, Lon: 10.7002, Accuracy: 5},
		}
		dist, distMin, distMax := convolutionFilter(path, path, 1, opts)
		assert.InDelta(t, 0, dist, 1e-6)
		assert.InDelta(t, 0, distMin, 1e-6)
		assert.InDelta(t, 10, distMax, 1e-6)
	})

	t.Run("lower bound clamps at zero", func(t *testing.T) {
		path := []TrackPoint{{Lat: 59.9, Lon: 10.7, Accuracy: 30}}
		_, distMin, _ := convolutionFilter(path, path, 0, opts)
		assert.Equal(t, 0.0, distMin)
	})

	t.Run("window without usable samples yields the sentinel", func(t *testing.T) {
		path := []TrackPoint{{}, {}, {}}
		dist, distMin, distMax := convolutionFilter(path, path, 1, opts)
		assert.Equal(t, distSentinel, dist)
		assert.Equal(t, distSentinel, distMin)
		assert.Equal(t, distSentinel, distMax)
	})
}

// TestConvolutionDistance tests timestep selection of the estimator.
func TestConvolutionDistance(t *testing.T) {
	opts := defaultFilterOpts()
	times := []int64{0, 60, 120}

	t.Run("keeps close timesteps", func(t *testing.T) {
		path := []TrackPoint{
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
		}
		cd := ConvolutionDistance(times, path, path, opts)
		require.Equal(t, 3, cd.Len())
		assert.Equal(t, []int{0, 1, 2}, cd.Steps)
		assert.Equal(t, times, cd.Times)
	})

	t.Run("drops timesteps beyond the distance threshold", func(t *testing.T) {
		// ~1.1km apart with tight accuracy: distMin far above DistThresh.
		path1 := []TrackPoint{
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
		}
		path2 := []TrackPoint{
			{Lat: 59.9100, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9100, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9100, Lon: 10.7000, Accuracy: 5},
		}
		cd := ConvolutionDistance(times, path1, path2, opts)
		assert.Equal(t, 0, cd.Len())
	})

	t.Run("skips timesteps where either path is undefined", func(t *testing.T) {
		path1 := []TrackPoint{
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
		}
		path2 := []TrackPoint{
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{Lat: 59.9000, Lon: 10.7000, Accuracy: 5},
			{},
		}
		cd := ConvolutionDistance(times, path1, path2, opts)
		require.Equal(t, 1, cd.Len())
		assert.Equal(t, []int{0}, cd.Steps)
	})
}

// TestPointwiseDistance tests the sample-by-sample estimator.
func TestPointwiseDistance(t *testing.T) {
	opts := defaultFilterOpts()
	times := []int64{0, 60}

	path1 := []TrackPoint{
		{Lat: 59.9000, Lon: 10.7000, Accuracy: 4},
		{Lat: 59.9000, Lon: 10.7000, Accuracy: 4},
	}
	path2 := []TrackPoint{
		{Lat: 59.90005, Lon: 10.7000, Accuracy: 4},
		{Lat: 59.9100, Lon: 10.7000, Accuracy: 4},
	}
	cd := PointwiseDistance(times, path1, path2, opts)
	require.Equal(t, 1, cd.Len())
	// ~5.6m apart, error bound is the summed accuracies.
	assert.InDelta(t, 5.6, cd.Dists[0], 0.5)
	assert.InDelta(t, cd.Dists[0]+8, cd.DistsMax[0], 1e-9)
	assert.Equal(t, 0.0, cd.DistsMin[0])
}

// TestContactDetailsSlice tests the parallel-slice restriction.
func TestContactDetailsSlice(t *testing.T) {
	cd := &ContactDetails{}
	cd.append(0, 100, 1, 0, 2, TrackPoint{Accuracy: 5}, TrackPoint{Accuracy: 7})
	cd.append(1, 160, 2, 1, 3, TrackPoint{Accuracy: 6}, TrackPoint{Accuracy: 8})
	cd.append(2, 220, 3, 2, 4, TrackPoint{Accuracy: 7}, TrackPoint{Accuracy: 9})

	sub := cd.slice(1, 3)
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, []int64{160, 220}, sub.Times)
	assert.Equal(t, []float64{2, 3}, sub.Dists)
	assert.Equal(t, [2]float64{6, 8}, sub.Accuracy[0])
}
