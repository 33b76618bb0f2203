package core

import (
	"fmt"
	"sort"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// medianSentinel is reported when a median distance is requested from a
// contact without any location evidence.
const medianSentinel = 1e6

// accurateGPSThreshold is the average accuracy in meters below which a
// GPS contact counts as accurate for reporting rules.
const accurateGPSThreshold = 10

// Contact is one detected encounter between the patient and a peer.
type Contact interface {
	Type() schema.ContactType
	StartTime() int64
	EndTime() int64
	Duration() float64

	RiskScore() float64
	RiskThresholds() [3]float64

	AverageDistance() float64
	MedianDistance() float64
	AverageAccuracy() float64

	// Details returns the per-timestep location evidence. Bluetooth
	// contacts carry the GPS enrichment here; it may be empty.
	Details() *ContactDetails

	// TransportPairs returns the (patient, peer) transport modes per
	// detail timestep.
	TransportPairs() [][2]schema.TransportMode

	// DurationWithGPS is the part of the contact covered by location
	// evidence. Equals Duration for GPS contacts.
	DurationWithGPS() float64

	// Phase durations in seconds. Zero for GPS contacts.
	VeryCloseDuration() float64
	CloseDuration() float64
	RelativelyCloseDuration() float64

	// Split cuts the contact at t, which must lie strictly inside it.
	Split(t int64) (Contact, Contact, error)

	// POI resolution cache, filled by the report builder.
	poiResult() *POIResult
	setPOIResult(*POIResult)
}

// POIResult is the outcome of resolving a contact against map features.
// Inside, outside and uncertain always sum to the contact duration.
type POIResult struct {
	POIs      map[string]float64 // place -> seconds, raw
	Filtered  map[string]float64 // place -> seconds, after threshold filtering
	Inside    float64
	Outside   float64
	Uncertain float64
}

// riskCategoryIndex grades a score against thresholds ordered from high
// to low. Returns an index into schema.GradedRiskCategories.
func riskCategoryIndex(score float64, thresholds [3]float64) int {
	for i, th := range thresholds {
		if score > th {
			return i
		}
	}
	return 3
}

// RiskCategoryOf grades a single contact.
func RiskCategoryOf(c Contact) schema.RiskCategory {
	return schema.RiskCategoryFromIndex(riskCategoryIndex(c.RiskScore(), c.RiskThresholds()))
}

// weightedMedian returns the median of values under the given weights.
// Values need not be sorted; weights must be non-negative with a
// positive sum.
func weightedMedian(values, weights []float64) float64 {
	type pair struct{ v, w float64 }
	pairs := make([]pair, len(values))
	var total float64
	for i := range values {
		pairs[i] = pair{values[i], weights[i]}
		total += weights[i]
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	half := total / 2
	var cum float64
	for i, p := range pairs {
		cum += p.w
		if cum > half {
			return p.v
		}
		if cum == half && i+1 < len(pairs) {
			return (p.v + pairs[i+1].v) / 2
		}
	}
	return pairs[len(pairs)-1].v
}

// trapezoid integrates values over times with the trapezoidal rule.
func trapezoid(values []float64, times []int64) float64 {
	var integral float64
	for i := 1; i < len(values); i++ {
		integral += float64(times[i]-times[i-1]) * (values[i] + values[i-1]) / 2
	}
	return integral
}

// poiCache carries the lazily resolved POI outcome of a contact.
type poiCache struct {
	pois *POIResult
}

func (p *poiCache) poiResult() *POIResult     { return p.pois }
func (p *poiCache) setPOIResult(r *POIResult) { p.pois = r }

// TransportModes sums the contact time spent in each (patient, peer)
// transport mode pair, weighting each timestep by half the gap to its
// neighbours. Pairs below both the proportion and duration thresholds
// are dropped.
func TransportModes(c Contact, threshold, thresholdDuration float64) map[[2]schema.TransportMode]float64 {
	cd := c.Details()
	pairs := c.TransportPairs()
	if cd.Len() == 0 || len(pairs) != cd.Len() {
		return map[[2]schema.TransportMode]float64{}
	}
	weights := make([]float64, cd.Len())
	for i := 1; i < cd.Len(); i++ {
		gap := float64(cd.Times[i] - cd.Times[i-1])
		weights[i-1] += gap / 2
		weights[i] += gap / 2
	}
	sums := make(map[[2]schema.TransportMode]float64)
	for i, pair := range pairs {
		sums[pair] += weights[i]
	}
	out := make(map[[2]schema.TransportMode]float64, len(sums))
	for pair, dur := range sums {
		if dur >= threshold*c.Duration() || dur >= thresholdDuration {
			out[pair] = dur
		}
	}
	return out
}

// mostCommonShare is the share of total transport time a mode must hold
// to be reported on its own.
const mostCommonShare = 0.4

// MostCommonTransportModes reports the transport modes dominating the
// contact. When no mode reaches the dominance share, the single most
// common one is returned.
func MostCommonTransportModes(c Contact) []schema.TransportMode {
	modes := TransportModes(c, 0, 0)
	if len(modes) == 0 {
		return nil
	}
	sums := make(map[schema.TransportMode]float64)
	for pair, dur := range modes {
		if pair[0] != schema.UnknownTransport {
			sums[pair[0]] += dur
		}
		if pair[1] != schema.UnknownTransport {
			sums[pair[1]] += dur
		}
	}
	if len(sums) == 0 {
		return nil
	}
	var total float64
	for _, dur := range sums {
		total += dur
	}
	var out []schema.TransportMode
	for mode, dur := range sums {
		if dur > mostCommonShare*total {
			out = append(out, mode)
		}
	}
	if len(out) == 0 {
		var best schema.TransportMode
		bestDur := -1.0
		for mode, dur := range sums {
			if dur > bestDur || (dur == bestDur && mode < best) {
				best, bestDur = mode, dur
			}
		}
		return []schema.TransportMode{best}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GPSContact is an encounter detected from overlapping trajectories.
type GPSContact struct {
	poiCache
	// Trajectories restricted to the contact window plus slack.
	T1, T2     Trajectory
	cd         *ContactDetails
	transports [][2]schema.TransportMode
}

// NewGPSContact builds a contact from its per-timestep evidence. The
// trajectories are filtered to the contact window plus slack seconds.
func NewGPSContact(t1, t2 Trajectory, cd *ContactDetails, slack float64) (*GPSContact, error) {
	if cd.Len() == 0 {
		return nil, fmt.Errorf("gps contact without timesteps")
	}
	start, end := cd.Times[0], cd.Times[cd.Len()-1]
	c := &GPSContact{
		T1: t1.Filter(start-int64(slack), end+int64(slack)),
		T2: t2.Filter(start-int64(slack), end+int64(slack)),
		cd: cd,
	}
	c.transports = transportPairs(c.T1, c.T2, cd.Times)
	return c, nil
}

// transportPairs annotates each timestep with both parties' transport
// modes.
func transportPairs(t1, t2 Trajectory, times []int64) [][2]schema.TransportMode {
	pairs := make([][2]schema.TransportMode, len(times))
	for i, t := range times {
		pairs[i] = [2]schema.TransportMode{t1.ModeOfTransport(t), t2.ModeOfTransport(t)}
	}
	return pairs
}

// Type returns the gps contact type.
func (c *GPSContact) Type() schema.ContactType { return schema.GPSContactType }

// StartTime returns the first contact timestamp.
func (c *GPSContact) StartTime() int64 { return c.cd.Times[0] }

// EndTime returns the last contact timestamp.
func (c *GPSContact) EndTime() int64 { return c.cd.Times[c.cd.Len()-1] }

// Duration returns the contact duration in seconds.
func (c *GPSContact) Duration() float64 { return float64(c.EndTime() - c.StartTime()) }

// DurationWithGPS equals Duration: the whole contact has GPS evidence.
func (c *GPSContact) DurationWithGPS() float64 { return c.Duration() }

// Details returns the per-timestep evidence.
func (c *GPSContact) Details() *ContactDetails { return c.cd }

// TransportPairs returns the per-timestep transport modes.
func (c *GPSContact) TransportPairs() [][2]schema.TransportMode { return c.transports }

// AverageDistance integrates the distance over time with the
// trapezoidal rule.
func (c *GPSContact) AverageDistance() float64 {
	if c.Duration() == 0 {
		return c.cd.Dists[0]
	}
	return trapezoid(c.cd.Dists, c.cd.Times) / c.Duration()
}

// MedianDistance returns the duration-weighted median of the interval
// midpoint distances.
func (c *GPSContact) MedianDistance() float64 {
	switch c.cd.Len() {
	case 0:
		return medianSentinel
	case 1:
		return c.cd.Dists[0]
	}
	n := c.cd.Len()
	mids := make([]float64, n-1)
	weights := make([]float64, n-1)
	for i := 1; i < n; i++ {
		mids[i-1] = (c.cd.Dists[i] + c.cd.Dists[i-1]) / 2
		weights[i-1] = float64(c.cd.Times[i] - c.cd.Times[i-1])
	}
	return weightedMedian(mids, weights)
}

// AverageAccuracy integrates the mean pair accuracy over time.
func (c *GPSContact) AverageAccuracy() float64 {
	if c.Duration() == 0 {
		return (c.cd.Accuracy[0][0] + c.cd.Accuracy[0][1]) / 2
	}
	means := make([]float64, c.cd.Len())
	for i, acc := range c.cd.Accuracy {
		means[i] = (acc[0] + acc[1]) / 2
	}
	return trapezoid(means, c.cd.Times) / c.Duration()
}

// RiskScore integrates inverse squared distance over the contact, in
// minutes per square meter. Distances clamp at one meter so that
// missing values cannot blow up the integral.
func (c *GPSContact) RiskScore() float64 {
	var integral float64
	for i := 1; i < c.cd.Len(); i++ {
		prev := max(1, c.cd.Dists[i-1])
		cur := max(1, c.cd.Dists[i])
		dt := float64(c.cd.Times[i] - c.cd.Times[i-1])
		integral += dt * (1/(prev*prev) + 1/(cur*cur)) / 2
	}
	return integral / 60
}

// RiskThresholds returns the gps category thresholds from high to low.
func (c *GPSContact) RiskThresholds() [3]float64 { return [3]float64{4.0, 2.5, 0.01} }

// VeryCloseDuration is zero for GPS contacts.
func (c *GPSContact) VeryCloseDuration() float64 { return 0 }

// CloseDuration is zero for GPS contacts.
func (c *GPSContact) CloseDuration() float64 { return 0 }

// RelativelyCloseDuration is zero for GPS contacts.
func (c *GPSContact) RelativelyCloseDuration() float64 { return 0 }

// Split cuts the contact at t. Timesteps before t form the first part,
// the rest the second. Durations and risk scores of the parts sum to the
// whole.
func (c *GPSContact) Split(t int64) (Contact, Contact, error) {
	if t <= c.StartTime() || t >= c.EndTime() {
		return nil, nil, fmt.Errorf("split time %d outside of contact time %d - %d", t, c.StartTime(), c.EndTime())
	}
	point := sort.Search(c.cd.Len(), func(i int) bool { return c.cd.Times[i] >= t })
	c1, err := NewGPSContact(c.T1.Filter(c.T1.Start(), t-1), c.T2.Filter(c.T2.Start(), t-1), c.cd.slice(0, point), 0)
	if err != nil {
		return nil, nil, err
	}
	c2, err := NewGPSContact(c.T1.Filter(t, c.T1.End()), c.T2.Filter(t, c.T2.End()), c.cd.slice(point, c.cd.Len()), 0)
	if err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}

// findConsecutiveRuns groups detail indices into runs: a step continues
// a run when it is the next union index or within glueBelowDuration
// seconds of its predecessor.
func findConsecutiveRuns(cd *ContactDetails, glueBelowDuration float64) [][2]int {
	if cd.Len() == 0 {
		return nil
	}
	var runs [][2]int
	lo := 0
	for i := 1; i < cd.Len(); i++ {
		if cd.Steps[i]-cd.Steps[i-1] == 1 {
			continue
		}
		if float64(cd.Times[i]-cd.Times[i-1]) <= glueBelowDuration {
			continue
		}
		runs = append(runs, [2]int{lo, i})
		lo = i
	}
	return append(runs, [2]int{lo, cd.Len()})
}

// GPSContactsFromTrajectories detects the contacts between two
// trajectories: both are upsampled onto their timestamp union, distances
// estimated with distFunc, and contiguous runs become contacts.
func GPSContactsFromTrajectories(t1, t2 Trajectory, params schema.AnalysisParams, distFunc DistanceFunc) (ContactList, error) {
	times := UnionOfTimestamps(t1.Times(), t2.Times())
	hardGap := int64(params.MaxInterpolationGapH * 3600)

	interp1 := t1.RestrictedUpsampling(times, params.AllowedJump, hardGap)
	interp2 := t2.RestrictedUpsampling(times, params.AllowedJump, hardGap)

	details := distFunc(times, interp1, interp2, params.Filter)

	var contacts ContactList
	for _, run := range findConsecutiveRuns(details, params.GlueBelowDuration) {
		contact, err := NewGPSContact(t1, t2, details.slice(run[0], run[1]), params.SlackTime)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}
