// Package geo holds the great-circle math shared by the proximity
// estimators and the map feature client.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// Earth radii used throughout.
const (
	EarthRadiusMeters = 6371000.0
	EarthRadiusKm     = 6371.0
)

// Kilometers per degree at the equator.
const (
	degLatKm = 110.574235
	degLonKm = 110.572833
)

// HaversineDistance calculates the great-circle distance between two
// points in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// BoundingBox is an axis-aligned lat/lon box.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// NewBoundingBox builds the box of the given radius in meters around a point.
func NewBoundingBox(lat, lon, distanceMeters float64) BoundingBox {
	deltaLat := distanceMeters / 1000.0 / degLatKm
	deltaLon := distanceMeters / 1000.0 / (degLonKm * math.Cos(lat*math.Pi/180))
	return BoundingBox{
		MinLat: lat - deltaLat,
		MinLon: lon - deltaLon,
		MaxLat: lat + deltaLat,
		MaxLon: lon + deltaLon,
	}
}

// Combine returns the smallest box containing both boxes.
func (b BoundingBox) Combine(other BoundingBox) BoundingBox {
	return BoundingBox{
		MinLat: math.Min(b.MinLat, other.MinLat),
		MinLon: math.Min(b.MinLon, other.MinLon),
		MaxLat: math.Max(b.MaxLat, other.MaxLat),
		MaxLon: math.Max(b.MaxLon, other.MaxLon),
	}
}

// Contains reports whether the point lies strictly inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.MinLat < lat && lat < b.MaxLat && b.MinLon < lon && lon < b.MaxLon
}

// Overlaps reports whether any corner of the other box lies inside this one.
func (b BoundingBox) Overlaps(other BoundingBox) bool {
	return b.Contains(other.MinLat, other.MinLon) ||
		b.Contains(other.MaxLat, other.MaxLon) ||
		b.Contains(other.MaxLat, other.MinLon) ||
		b.Contains(other.MinLat, other.MaxLon)
}

// SquareMeters approximates the box area.
func (b BoundingBox) SquareMeters() float64 {
	height := HaversineDistance(b.MinLat, b.MinLon, b.MaxLat, b.MinLon)
	width := HaversineDistance(b.MinLat, b.MinLon, b.MinLat, b.MaxLon)
	return height * width
}

// SquareKm approximates the box area in square kilometers.
func (b BoundingBox) SquareKm() float64 {
	return b.SquareMeters() / 1e6
}

// Query formats the box for an Overpass bbox clause.
func (b BoundingBox) Query() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Diameter is the corner-to-corner distance in meters.
func (b BoundingBox) Diameter() float64 {
	return HaversineDistance(b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
