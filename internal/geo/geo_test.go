package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHaversineDistance tests great-circle distances against known
// values.
func TestHaversineDistance(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		assert.Zero(t, HaversineDistance(59.9, 10.7, 59.9, 10.7))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := HaversineDistance(59.0, 10.7, 60.0, 10.7)
		assert.InDelta(t, 111195, d, 100)
	})

	t.Run("oslo to trondheim", func(t *testing.T) {
		d := HaversineDistance(59.9139, 10.7522, 63.4305, 10.3951)
		assert.InDelta(t, 392000, d, 5000)
	})

	t.Run("symmetry", func(t *testing.T) {
		a := HaversineDistance(59.9, 10.7, 60.0, 10.8)
		b := HaversineDistance(60.0, 10.8, 59.9, 10.7)
		assert.InDelta(t, a, b, 1e-9)
	})
}

// TestBoundingBox tests box construction and geometry.
func TestBoundingBox(t *testing.T) {
	box := NewBoundingBox(59.9, 10.7, 100)

	t.Run("centered on the point", func(t *testing.T) {
		assert.InDelta(t, 59.9, (box.MinLat+box.MaxLat)/2, 1e-9)
		assert.InDelta(t, 10.7, (box.MinLon+box.MaxLon)/2, 1e-9)
	})

	t.Run("contains is strict", func(t *testing.T) {
		assert.True(t, box.Contains(59.9, 10.7))
		assert.False(t, box.Contains(box.MinLat, 10.7))
		assert.False(t, box.Contains(59.95, 10.7))
	})

	t.Run("combine spans both boxes", func(t *testing.T) {
		other := NewBoundingBox(59.95, 10.7, 100)
		combined := box.Combine(other)
		assert.Equal(t, box.MinLat, combined.MinLat)
		assert.Equal(t, other.MaxLat, combined.MaxLat)
		assert.True(t, combined.Contains(59.925, 10.7))
	})

	t.Run("overlaps", func(t *testing.T) {
		assert.True(t, box.Overlaps(NewBoundingBox(59.9005, 10.7, 100)))
		assert.False(t, box.Overlaps(NewBoundingBox(59.95, 10.7, 100)))
	})

	t.Run("diameter covers the radius twice per axis", func(t *testing.T) {
		// Corner to corner of a 100m box is around 2*sqrt(2)*100.
		assert.InDelta(t, 283, box.Diameter(), 10)
	})

	t.Run("area of a 1km box", func(t *testing.T) {
		km := NewBoundingBox(59.9, 10.7, 500)
		assert.InDelta(t, 1.0, km.SquareKm(), 0.02)
	})

	t.Run("query clause ordering", func(t *testing.T) {
		b := BoundingBox{MinLat: 1, MinLon: 2, MaxLat: 3, MaxLon: 4}
		assert.Equal(t, "1.000000,2.000000,3.000000,4.000000", b.Query())
	})
}
