// Package core implements contact detection and risk scoring over GPS
// trajectories and Bluetooth pairing observations.
package core

import (
	"sort"

	"github.com/smittestopp/smittestoppbackend/internal/geo"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// TrackPoint is one interpolated position. The zero value marks a time
// that could not be interpolated.
type TrackPoint struct {
	Lat      float64
	Lon      float64
	Accuracy float64
}

// IsZero reports whether the point carries no position.
func (p TrackPoint) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0 && p.Accuracy == 0
}

// Trajectory is a time-ordered sequence of GPS samples for one device.
type Trajectory struct {
	Samples []schema.Sample
}

// NewTrajectory builds a trajectory from raw samples: samples whose
// accuracy is at or above the outlier threshold are dropped (a zero
// threshold keeps everything), zero-coordinate samples are dropped
// since a zero latitude or longitude marks a missing position, and the
// rest are sorted by time with the first sample winning on equal
// timestamps.
func NewTrajectory(samples []schema.Sample, outlierThreshold float64) Trajectory {
	kept := make([]schema.Sample, 0, len(samples))
	for _, s := range samples {
		if outlierThreshold > 0 && s.Accuracy >= outlierThreshold {
			continue
		}
		if s.Lat == 0 || s.Lon == 0 {
			continue
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Time < kept[j].Time })
	deduped := make([]schema.Sample, 0, len(kept))
	for _, s := range kept {
		if n := len(deduped); n > 0 && deduped[n-1].Time == s.Time {
			continue
		}
		deduped = append(deduped, s)
	}
	return Trajectory{Samples: deduped}
}

// IsEmpty reports whether the trajectory has no samples.
func (tr Trajectory) IsEmpty() bool {
	return len(tr.Samples) == 0
}

// Start returns the first sample time, or 0 when empty.
func (tr Trajectory) Start() int64 {
	if tr.IsEmpty() {
		return 0
	}
	return tr.Samples[0].Time
}

// End returns the last sample time, or 0 when empty.
func (tr Trajectory) End() int64 {
	if tr.IsEmpty() {
		return 0
	}
	return tr.Samples[len(tr.Samples)-1].Time
}

// Times returns the sample times.
func (tr Trajectory) Times() []int64 {
	times := make([]int64, len(tr.Samples))
	for i, s := range tr.Samples {
		times[i] = s.Time
	}
	return times
}

// Filter returns the sub-trajectory with sample times in [from, to].
func (tr Trajectory) Filter(from, to int64) Trajectory {
	lo := sort.Search(len(tr.Samples), func(i int) bool { return tr.Samples[i].Time >= from })
	hi := sort.Search(len(tr.Samples), func(i int) bool { return tr.Samples[i].Time > to })
	return Trajectory{Samples: tr.Samples[lo:hi]}
}

// ModeOfTransport returns the transport mode of the sample nearest in
// time. Ties break toward the earlier sample. Empty trajectories report
// UnknownTransport.
func (tr Trajectory) ModeOfTransport(t int64) schema.TransportMode {
	if tr.IsEmpty() {
		return schema.UnknownTransport
	}
	best := 0
	bestDiff := absInt64(tr.Samples[0].Time - t)
	for i := 1; i < len(tr.Samples); i++ {
		diff := absInt64(tr.Samples[i].Time - t)
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	mode := tr.Samples[best].Transport
	if mode == "" {
		return schema.UnknownTransport
	}
	return mode
}

// SequenceStartpoints marks the samples that begin a contiguous segment.
// A sample starts a new segment when the gap to its predecessor is at
// least hardGap seconds or the jump distance exceeds allowedJump meters.
func (tr Trajectory) SequenceStartpoints(allowedJump float64, hardGap int64) []bool {
	starts := make([]bool, len(tr.Samples))
	for i := range starts {
		starts[i] = true
	}
	for i := 0; i+1 < len(tr.Samples); i++ {
		a, b := tr.Samples[i], tr.Samples[i+1]
		if b.Time-a.Time >= hardGap {
			continue
		}
		if geo.HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon) > allowedJump {
			continue
		}
		starts[i+1] = false
	}
	return starts
}

// RestrictedUpsampling interpolates the trajectory at the given times.
// Interpolation is linear and limited to contiguous segments: times that
// fall outside every segment produce zero points, never extrapolations.
func (tr Trajectory) RestrictedUpsampling(times []int64, allowedJump float64, hardGap int64) []TrackPoint {
	points := make([]TrackPoint, len(times))
	if tr.IsEmpty() {
		return points
	}
	starts := tr.SequenceStartpoints(allowedJump, hardGap)

	segStart := 0
	for i := 1; i <= len(tr.Samples); i++ {
		if i < len(tr.Samples) && !starts[i] {
			continue
		}
		tr.interpolateSegment(points, times, segStart, i)
		segStart = i
	}
	return points
}

// interpolateSegment fills points for times within the segment [lo, hi).
func (tr Trajectory) interpolateSegment(points []TrackPoint, times []int64, lo, hi int) {
	seg := tr.Samples[lo:hi]
	if len(seg) == 0 {
		return
	}
	segFrom, segTo := seg[0].Time, seg[len(seg)-1].Time
	for i, t := range times {
		if t < segFrom || t > segTo {
			continue
		}
		points[i] = interpolateAt(seg, t)
	}
}

// interpolateAt linearly interpolates within a segment whose time range
// covers t.
func interpolateAt(seg []schema.Sample, t int64) TrackPoint {
	j := sort.Search(len(seg), func(i int) bool { return seg[i].Time >= t })
	if j < len(seg) && seg[j].Time == t {
		s := seg[j]
		return TrackPoint{Lat: s.Lat, Lon: s.Lon, Accuracy: s.Accuracy}
	}
	a, b := seg[j-1], seg[j]
	frac := float64(t-a.Time) / float64(b.Time-a.Time)
	return TrackPoint{
		Lat:      a.Lat + frac*(b.Lat-a.Lat),
		Lon:      a.Lon + frac*(b.Lon-a.Lon),
		Accuracy: a.Accuracy + frac*(b.Accuracy-a.Accuracy),
	}
}

// UnionOfTimestamps merges two sorted timestamp slices into a sorted
// slice without duplicates.
func UnionOfTimestamps(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var next int64
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			next = a[i]
			i++
		case i >= len(a) || b[j] < a[i]:
			next = b[j]
			j++
		default:
			next = a[i]
			i++
			j++
		}
		if len(out) == 0 || out[len(out)-1] != next {
			out = append(out, next)
		}
	}
	return out
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
