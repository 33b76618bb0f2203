package core

import (
	"context"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

const (
	// Half intervals around a timestep are capped when weighting it.
	halfIntervalCap = 120
	// Feature query radii are capped to keep Overpass responses small.
	maxQueryRadius = 50
	// Feature queries are chunked so frequency ranking stays local.
	poiChunkSeconds = 7200

	categoryNotContacted    = "not_contacted"
	categoryInsideTransport = "inside_transport"
	categoryOutside         = "outside"
)

// POIResolver resolves the locations of contacts against map features
// and attaches the result to the contact.
type POIResolver struct {
	features contract.FeatureService
	opts     schema.POIOptions
}

// NewPOIResolver returns a resolver backed by the feature service.
func NewPOIResolver(features contract.FeatureService, opts schema.POIOptions) *POIResolver {
	return &POIResolver{features: features, opts: opts}
}

// poiRow is one location evidence timestep under POI analysis.
type poiRow struct {
	time      int64
	lat, lon  float64
	radius    float64
	inside    bool // both parties likely in a vehicle
	onFoot    bool // both parties likely walking or still
	uncertain bool
	contacted bool
	category  string
}

// Resolve computes where the contact took place and caches the outcome
// on the contact. Contacts without location evidence become fully
// uncertain.
func (r *POIResolver) Resolve(ctx context.Context, c Contact) error {
	if c.poiResult() != nil {
		return nil
	}
	cd := c.Details()
	if cd.Len() == 0 || c.Duration() == 0 || c.DurationWithGPS() == 0 {
		c.setPOIResult(&POIResult{
			POIs:      map[string]float64{schema.CategoryNA: c.Duration()},
			Filtered:  map[string]float64{schema.CategoryNA: c.Duration()},
			Uncertain: c.Duration(),
		})
		return nil
	}

	rows := r.buildRows(c)
	r.matchFeatures(ctx, rows)
	result := r.computeDurations(c, rows)
	result.Filtered = r.filterPOIs(result)
	c.setPOIResult(result)
	return nil
}

// buildRows prepares one row per usable evidence timestep: the search
// radius scaled by the transport mode pair and the transport masks.
func (r *POIResolver) buildRows(c Contact) []poiRow {
	cd := c.Details()
	pairs := c.TransportPairs()

	var rows []poiRow
	var times []int64
	var modes [][2]schema.TransportMode
	for i := 0; i < cd.Len(); i++ {
		if cd.Locations[i][0] == 0 {
			continue
		}
		pair := [2]schema.TransportMode{schema.UnknownTransport, schema.UnknownTransport}
		if i < len(pairs) {
			pair = pairs[i]
		}
		accuracy := (cd.Accuracy[i][0] + cd.Accuracy[i][1]) / 2
		rows = append(rows, poiRow{
			time:   cd.Times[i],
			lat:    cd.Locations[i][0],
			lon:    cd.Locations[i][1],
			radius: r.radiusFactor(pair[0], pair[1]) * accuracy,
		})
		times = append(times, cd.Times[i])
		modes = append(modes, pair)
	}

	inside, onFoot, uncertain := r.transportMasks(modes, times)
	for i := range rows {
		rows[i].inside = inside[i]
		rows[i].onFoot = onFoot[i]
		rows[i].uncertain = uncertain[i]
	}
	return rows
}

// radiusFactor shrinks the search radius depending on how certain it is
// that the parties were on foot. Any vehicle involvement disables the
// search.
func (r *POIResolver) radiusFactor(m1, m2 schema.TransportMode) float64 {
	f := r.opts.AccuracyRadiusFactor
	still := func(m schema.TransportMode) bool { return m == schema.StillTransport }
	onFoot := func(m schema.TransportMode) bool { return m == schema.OnFootTransport }
	vague := func(m schema.TransportMode) bool { return m == schema.UnknownTransport || onFoot(m) }
	switch {
	case still(m1) && still(m2):
		return f[0]
	case (still(m1) || still(m2)) && (vague(m1) || vague(m2)):
		return f[1]
	case (onFoot(m1) || onFoot(m2)) && (vague(m1) || vague(m2)):
		return f[2]
	default:
		return f[3]
	}
}

// transportMasks classifies each timestep as inside a vehicle, on foot
// or uncertain. A missing mode on one side inherits the other side's
// classification; disagreement and double unknowns are uncertain.
func (r *POIResolver) transportMasks(modes [][2]schema.TransportMode, times []int64) (inside, onFoot, uncertain []bool) {
	in := func(m schema.TransportMode) bool {
		for _, mode := range r.opts.InsideTransportModes {
			if m == mode {
				return true
			}
		}
		return false
	}
	walking := func(m schema.TransportMode) bool {
		for _, mode := range r.opts.WalkingModes {
			if m == mode {
				return true
			}
		}
		return false
	}
	inside = make([]bool, len(modes))
	onFoot = make([]bool, len(modes))
	uncertain = make([]bool, len(modes))
	for i, pair := range modes {
		m1, m2 := pair[0], pair[1]
		unknown := m1 == schema.UnknownTransport || m2 == schema.UnknownTransport
		inside[i] = (in(m1) && in(m2)) || (unknown && (in(m1) || in(m2)))
		onFoot[i] = (walking(m1) && walking(m2)) || (unknown && (walking(m1) || walking(m2)))
	}
	inside = r.smoothFlips(inside, times)
	onFoot = r.smoothFlips(onFoot, times)
	for i := range modes {
		uncertain[i] = !inside[i] && !onFoot[i]
	}
	return inside, onFoot, uncertain
}

// smoothFlips removes isolated mode flips shorter than the filtration
// duration, since a single sample rarely means a real mode change.
func (r *POIResolver) smoothFlips(mask []bool, times []int64) []bool {
	if len(mask) <= 4 {
		return mask
	}
	out := make([]bool, len(mask))
	copy(out, mask)
	for i := 2; i < len(mask)-2; i++ {
		isolated := mask[i] != mask[i-1] && mask[i] != mask[i-2] &&
			mask[i] != mask[i+1] && mask[i] != mask[i+2]
		if !isolated {
			continue
		}
		if durationOfContact(times, i, i+1) > r.opts.TransportFiltrationDuration {
			continue
		}
		out[i] = !mask[i]
	}
	return out
}

// matchFeatures queries the feature service chunk by chunk and selects
// for every contacted row the most frequently seen candidate. A failing
// query degrades its chunk to no feature found instead of failing the
// contact.
func (r *POIResolver) matchFeatures(ctx context.Context, rows []poiRow) {
	selected := make([]schema.Feature, len(rows))
	for lo := 0; lo < len(rows); {
		hi := lo + 1
		chunk := rows[lo].time / poiChunkSeconds
		for hi < len(rows) && rows[hi].time/poiChunkSeconds == chunk {
			hi++
		}
		if err := r.matchChunk(ctx, rows, selected, lo, hi); err != nil {
			contract.Logger.Warn().Err(err).
				Int64("from", rows[lo].time).
				Int64("to", rows[hi-1].time).
				Msg("feature lookup failed, leaving points unmatched")
		}
		lo = hi
	}

	// Rows whose selected feature appears rarely and briefly are noise.
	r.eliminateSuspicious(rows, selected)

	for i := range rows {
		switch {
		case !rows[i].onFoot || !rows[i].contacted:
			rows[i].contacted = false
			rows[i].category = categoryNotContacted
		default:
			rows[i].category = categoryFromTags(selected[i].Tags)
		}
	}
}

// matchChunk resolves the rows of one time chunk.
func (r *POIResolver) matchChunk(ctx context.Context, rows []poiRow, selected []schema.Feature, lo, hi int) error {
	points := make([]schema.FeaturePoint, hi-lo)
	for i := lo; i < hi; i++ {
		points[i-lo] = schema.FeaturePoint{
			Lat:    rows[i].lat,
			Lon:    rows[i].lon,
			Radius: min(rows[i].radius, maxQueryRadius),
		}
	}
	candidates, err := r.features.QueryPoints(ctx, points, r.opts.TypesOfAmenities)
	if err != nil {
		return err
	}

	counts := make(map[int64]int)
	for _, features := range candidates {
		for _, f := range features {
			counts[f.ID]++
		}
	}
	for i := lo; i < hi; i++ {
		features := candidates[i-lo]
		if len(features) == 0 {
			continue
		}
		best := features[0]
		for _, f := range features[1:] {
			if counts[f.ID] > counts[best.ID] {
				best = f
			}
		}
		rows[i].contacted = true
		selected[i] = best
	}
	return nil
}

// eliminateSuspicious drops rows whose selected feature was seen at
// most the filtration frequency and whose rows cover less than the
// filtration duration.
func (r *POIResolver) eliminateSuspicious(rows []poiRow, selected []schema.Feature) {
	times := make([]int64, len(rows))
	byFeature := make(map[int64][]int)
	for i := range rows {
		times[i] = rows[i].time
		if rows[i].contacted {
			byFeature[selected[i].ID] = append(byFeature[selected[i].ID], i)
		}
	}
	for _, indices := range byFeature {
		if len(indices) > r.opts.POIFiltrationFrequency {
			continue
		}
		if durationOfContact(times, indices[0], indices[len(indices)-1]+1) >= r.opts.POIFiltrationDuration {
			continue
		}
		for _, i := range indices {
			rows[i].contacted = false
		}
	}
}

// categoryFromTags maps raw feature tags to a report category.
func categoryFromTags(tags map[string]string) string {
	lookup := func(value string) string {
		if category, ok := schema.BuildingCategories[value]; ok {
			return category
		}
		return schema.CategoryOtherBuildings
	}
	if amenity, ok := tags["amenity"]; ok {
		return lookup(amenity)
	}
	if building, ok := tags["building"]; ok {
		if building == "yes" {
			if t, ok := tags["building:type"]; ok {
				building = t
			} else if u, ok := tags["building:use"]; ok {
				building = u
			} else {
				return schema.CategoryOtherBuildings
			}
		}
		return lookup(building)
	}
	if _, ok := tags["shop"]; ok {
		return schema.CategoryShop
	}
	if _, ok := tags["public_transport"]; ok {
		return schema.CategoryTransportStop
	}
	if _, ok := tags["office"]; ok {
		return schema.CategoryOffice
	}
	return schema.CategoryOtherBuildings
}

// computeDurations converts the classified rows into per-place
// durations that sum exactly to the contact duration. Time the
// evidence does not cover counts as uncertain.
func (r *POIResolver) computeDurations(c Contact, rows []poiRow) *POIResult {
	times := make([]int64, len(rows))
	for i := range rows {
		times[i] = rows[i].time
	}

	durations := map[string]float64{
		categoryOutside:          0,
		categoryInsideTransport:  0,
		schema.CategoryUncertain: 0,
	}
	var inside, outside float64

	addRuns := func(indices []int, key string) float64 {
		var total float64
		for _, run := range consecutiveRuns(indices) {
			total += durationOfContact(times, run[0], run[1])
		}
		durations[key] += total
		return total
	}

	byCategory := make(map[string][]int)
	var transportIdx, outsideIdx []int
	for i, row := range rows {
		if row.category != categoryNotContacted {
			byCategory[row.category] = append(byCategory[row.category], i)
		}
		if row.inside {
			transportIdx = append(transportIdx, i)
		}
		if !row.uncertain && !row.inside && row.category == categoryNotContacted {
			outsideIdx = append(outsideIdx, i)
		}
	}
	for category, indices := range byCategory {
		inside += addRuns(indices, category)
	}
	inside += addRuns(transportIdx, categoryInsideTransport)
	outside = addRuns(outsideIdx, categoryOutside)

	var covered float64
	if len(times) > 0 {
		covered = float64(times[len(times)-1] - times[0])
	}
	uncertain := max(covered-inside-outside, 0)
	uncertain += c.Duration() - c.DurationWithGPS()
	durations[schema.CategoryUncertain] = uncertain

	total := inside + outside + uncertain
	if total == 0 {
		return &POIResult{
			POIs:      map[string]float64{schema.CategoryUncertain: c.Duration()},
			Uncertain: c.Duration(),
		}
	}

	// Scale so the pieces sum to the contact duration, with uncertain
	// absorbing the rounding slack.
	ratio := c.Duration() / total
	pois := make(map[string]float64)
	var scaledOther float64
	for place, dur := range durations {
		if place == schema.CategoryUncertain {
			continue
		}
		scaled := dur * ratio
		if scaled != 0 {
			pois[place] = scaled
		}
		scaledOther += scaled
	}
	uncertain = max(0, c.Duration()-scaledOther)
	if uncertain != 0 {
		pois[schema.CategoryUncertain] = uncertain
	}
	return &POIResult{
		POIs:      pois,
		Inside:    inside * ratio,
		Outside:   outside * ratio,
		Uncertain: uncertain,
	}
}

// filterPOIs keeps the dominant places of a result. A place survives on
// a share of the inside time together with the duration floor, or on
// the long duration alone. When nothing survives, the largest entry is
// kept.
func (r *POIResolver) filterPOIs(result *POIResult) map[string]float64 {
	filtered := make(map[string]float64)
	for place, dur := range result.POIs {
		if place == schema.CategoryNA {
			continue
		}
		if place == schema.CategoryUncertain && !r.opts.KeepUncertain {
			continue
		}
		if (dur >= r.opts.ProportionThreshold*result.Inside && dur >= r.opts.DurationThreshold) ||
			dur >= r.opts.LongDurationThreshold {
			filtered[place] = dur
		}
	}
	if len(filtered) == 0 && len(result.POIs) > 0 {
		best, bestDur := "", -1.0
		for place, dur := range result.POIs {
			if dur > bestDur || (dur == bestDur && place < best) {
				best, bestDur = place, dur
			}
		}
		filtered[best] = bestDur
	}
	return filtered
}

// consecutiveRuns splits sorted indices into half-open runs of
// consecutive values.
func consecutiveRuns(indices []int) [][2]int {
	if len(indices) == 0 {
		return nil
	}
	var runs [][2]int
	lo := indices[0]
	prev := indices[0]
	for _, i := range indices[1:] {
		if i != prev+1 {
			runs = append(runs, [2]int{lo, prev + 1})
			lo = i
		}
		prev = i
	}
	return append(runs, [2]int{lo, prev + 1})
}

// durationOfContact weights the half-open index run [lo, hi) by the
// half intervals to its neighbours, capped so sparse sampling does not
// inflate it. Boundary runs use the actual endpoints.
func durationOfContact(times []int64, lo, hi int) float64 {
	if len(times) == 0 || hi <= lo {
		return 0
	}
	last := hi - 1
	upper := float64(times[last])
	if last < len(times)-1 {
		upper = min(float64(times[last]+times[last+1])/2, float64(times[last])+halfIntervalCap)
	}
	lower := float64(times[lo])
	if lo > 0 {
		lower = max(float64(times[lo]+times[lo-1])/2, float64(times[lo])-halfIntervalCap)
	}
	return upper - lower
}
