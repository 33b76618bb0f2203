package core

import (
	"github.com/smittestopp/smittestoppbackend/internal/geo"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// distSentinel marks a window without usable samples.
const distSentinel = 1e9

// ContactDetails holds the per-timestep evidence of one contact. All
// slices are parallel. Steps are row indices into the timestamp union
// the estimator ran over; Locations are the patient's (lat, lon)
// positions.
type ContactDetails struct {
	Steps     []int
	Times     []int64
	Dists     []float64
	DistsMin  []float64
	DistsMax  []float64
	Accuracy  [][2]float64
	Locations [][2]float64
}

// Len returns the number of timesteps in contact.
func (cd *ContactDetails) Len() int {
	return len(cd.Times)
}

// DistanceFunc estimates per-timestep distances between two aligned
// interpolated paths. Paths are parallel to times; zero points are skipped.
type DistanceFunc func(times []int64, path1, path2 []TrackPoint, opts schema.FilterOptions) *ContactDetails

// weightAccuracy maps a GPS accuracy to a confidence weight in
// [WeightMinVal, 1].
func weightAccuracy(acc float64, opts schema.FilterOptions) float64 {
	switch {
	case acc >= opts.WeightDistMax:
		return opts.WeightMinVal
	case acc > opts.WeightDistMin:
		a := 1 / (opts.WeightDistMin - opts.WeightDistMax)
		b := opts.WeightDistMax / (opts.WeightDistMax - opts.WeightDistMin)
		return a*acc + b
	default:
		return 1.0
	}
}

// substituteNeighbor looks one step to either side for a sample with a
// better weight when the center weight bottomed out. Returns the index
// and weight to use.
func substituteNeighbor(path []TrackPoint, ti int, w float64, opts schema.FilterOptions) (int, float64) {
	if w != opts.WeightMinVal {
		return ti, w
	}
	best, bestW := ti, w
	for _, tj := range []int{ti - 1, ti + 1} {
		if tj < 0 || tj >= len(path) || path[tj].IsZero() {
			continue
		}
		if wj := weightAccuracy(path[tj].Accuracy, opts); wj > bestW {
			best, bestW = tj, wj
		}
	}
	return best, bestW
}

// convolutionFilter computes the accuracy-weighted distance around one
// timestep, averaging over the window [ti-fs/2, ti+fs/2].
func convolutionFilter(path1, path2 []TrackPoint, timestep int, opts schema.FilterOptions) (dist, distMin, distMax float64) {
	var distance, countWeights, totalAccuracy float64
	half := int(opts.FilterSize / 2)
	for ti := timestep - half; ti <= timestep+half; ti++ {
		// No padding: skip out-of-range and undefined samples.
		if ti < 0 || ti >= len(path1) || ti >= len(path2) {
			continue
		}
		if path1[ti].IsZero() || path2[ti].IsZero() {
			continue
		}
		w1 := weightAccuracy(path1[ti].Accuracy, opts)
		w2 := weightAccuracy(path2[ti].Accuracy, opts)
		t1, w1 := substituteNeighbor(path1, ti, w1, opts)
		t2, w2 := substituteNeighbor(path2, ti, w2, opts)

		countWeights += w1 * w2
		distance += w1 * w2 * geo.HaversineDistance(path1[t1].Lat, path1[t1].Lon, path2[t2].Lat, path2[t2].Lon)
		totalAccuracy += w1 * w2 * (path1[t1].Accuracy + path2[t2].Accuracy)
	}
	if countWeights == 0 {
		return distSentinel, distSentinel, distSentinel
	}
	dist = distance / countWeights
	distMin = (distance - totalAccuracy) / countWeights
	if distMin < 0 {
		distMin = 0
	}
	distMax = (distance + totalAccuracy) / countWeights
	return dist, distMin, distMax
}

// ConvolutionDistance estimates distances with an accuracy-weighted
// window filter. Timesteps whose lower-bound distance exceeds DistThresh
// are dropped.
func ConvolutionDistance(times []int64, path1, path2 []TrackPoint, opts schema.FilterOptions) *ContactDetails {
	cd := &ContactDetails{}
	for i := range path1 {
		if path1[i].IsZero() || path2[i].IsZero() {
			continue
		}
		dist, distMin, distMax := convolutionFilter(path1, path2, i, opts)
		if distMin > opts.DistThresh {
			continue
		}
		cd.append(i, times[i], dist, distMin, distMax, path1[i], path2[i])
	}
	return cd
}

// PointwiseDistance estimates distances sample by sample, bounding the
// error by the sum of the two accuracies.
func PointwiseDistance(times []int64, path1, path2 []TrackPoint, opts schema.FilterOptions) *ContactDetails {
	cd := &ContactDetails{}
	for i := range path1 {
		if path1[i].IsZero() || path2[i].IsZero() {
			continue
		}
		dist := geo.HaversineDistance(path1[i].Lat, path1[i].Lon, path2[i].Lat, path2[i].Lon)
		distMin := dist - path1[i].Accuracy - path2[i].Accuracy
		if distMin < 0 {
			distMin = 0
		}
		distMax := dist + path1[i].Accuracy + path2[i].Accuracy
		if distMin > opts.DistThresh {
			continue
		}
		cd.append(i, times[i], dist, distMin, distMax, path1[i], path2[i])
	}
	return cd
}

func (cd *ContactDetails) append(step int, t int64, dist, distMin, distMax float64, p1, p2 TrackPoint) {
	cd.Steps = append(cd.Steps, step)
	cd.Times = append(cd.Times, t)
	cd.Dists = append(cd.Dists, dist)
	cd.DistsMin = append(cd.DistsMin, distMin)
	cd.DistsMax = append(cd.DistsMax, distMax)
	cd.Accuracy = append(cd.Accuracy, [2]float64{p1.Accuracy, p2.Accuracy})
	cd.Locations = append(cd.Locations, [2]float64{p1.Lat, p1.Lon})
}

// slice returns the details restricted to index range [lo, hi).
func (cd *ContactDetails) slice(lo, hi int) *ContactDetails {
	return &ContactDetails{
		Steps:     cd.Steps[lo:hi],
		Times:     cd.Times[lo:hi],
		Dists:     cd.Dists[lo:hi],
		DistsMin:  cd.DistsMin[lo:hi],
		DistsMax:  cd.DistsMax[lo:hi],
		Accuracy:  cd.Accuracy[lo:hi],
		Locations: cd.Locations[lo:hi],
	}
}
