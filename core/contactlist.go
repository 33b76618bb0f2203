package core

import (
	"sort"
	"time"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Reporting thresholds: a peer enters the report after more than two
// minutes of Bluetooth contact or more than thirty minutes of accurate
// GPS contact.
const (
	btReportDuration          = 120
	accurateGPSReportDuration = 1800
	btBelow15MinDuration      = 900
)

// dayAnchorHour places the cut for contacts running past midnight at
// 02:00 the next morning, so late evenings stay whole on their day.
const dayAnchorHour = 2

// ContactList holds all contacts between the patient and one peer.
type ContactList []Contact

// Filter keeps contacts of at least minDuration seconds. A non-empty
// contactType restricts the result to that kind.
func (l ContactList) Filter(minDuration float64, contactType schema.ContactType) ContactList {
	var out ContactList
	for _, c := range l {
		if c.Duration() < minDuration {
			continue
		}
		if contactType != schema.AnyContactType && c.Type() != contactType {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FilterAccurate keeps GPS contacts whose average accuracy is below
// maxAccuracy meters.
func (l ContactList) FilterAccurate(maxAccuracy float64) ContactList {
	var out ContactList
	for _, c := range l.Filter(0, schema.GPSContactType) {
		if c.AverageAccuracy() < maxAccuracy {
			out = append(out, c)
		}
	}
	return out
}

// Start returns the earliest contact start, or zero for an empty list.
func (l ContactList) Start() int64 {
	var start int64
	for i, c := range l {
		if i == 0 || c.StartTime() < start {
			start = c.StartTime()
		}
	}
	return start
}

// End returns the latest contact end, or zero for an empty list.
func (l ContactList) End() int64 {
	var end int64
	for _, c := range l {
		if c.EndTime() > end {
			end = c.EndTime()
		}
	}
	return end
}

// CumulativeDuration sums the contact durations in seconds.
func (l ContactList) CumulativeDuration() float64 {
	var sum float64
	for _, c := range l {
		sum += c.Duration()
	}
	return sum
}

// CumulativeRiskScore sums the contact risk scores.
func (l ContactList) CumulativeRiskScore() float64 {
	var sum float64
	for _, c := range l {
		sum += c.RiskScore()
	}
	return sum
}

// CumulativePhaseDurations sums the Bluetooth phase durations over the
// list, ordered very close, close, relatively close.
func (l ContactList) CumulativePhaseDurations() [3]float64 {
	var sums [3]float64
	for _, c := range l {
		sums[0] += c.VeryCloseDuration()
		sums[1] += c.CloseDuration()
		sums[2] += c.RelativelyCloseDuration()
	}
	return sums
}

// CumulativePOIDurations sums the inside, outside and uncertain time
// over the list. Contacts without a resolved POI result count as fully
// uncertain.
func (l ContactList) CumulativePOIDurations() (inside, outside, uncertain float64) {
	for _, c := range l {
		res := c.poiResult()
		if res == nil {
			uncertain += c.Duration()
			continue
		}
		inside += res.Inside
		outside += res.Outside
		uncertain += res.Uncertain
	}
	return inside, outside, uncertain
}

// IncludeInReport decides whether the peer has had enough exposure to
// appear in the report at all.
func (l ContactList) IncludeInReport() bool {
	if l.Filter(0, schema.BTContactType).CumulativeDuration() > btReportDuration {
		return true
	}
	return l.FilterAccurate(accurateGPSThreshold).CumulativeDuration() > accurateGPSReportDuration
}

// riskCategoryAsInt grades the cumulative risk score against the
// thresholds of the list's contact kind. An empty list grades lowest.
func (l ContactList) riskCategoryAsInt() int {
	if len(l) == 0 {
		return 3
	}
	return riskCategoryIndex(l.CumulativeRiskScore(), l[0].RiskThresholds())
}

// RiskCategory grades the peer. Peers with little accurate evidence get
// the dedicated short-exposure categories instead of a graded one.
func (l ContactList) RiskCategory() schema.RiskCategory {
	accurate := l.FilterAccurate(accurateGPSThreshold)
	bt := l.Filter(0, schema.BTContactType)

	accurateDuration := accurate.CumulativeDuration()
	if accurateDuration <= accurateGPSReportDuration && bt.CumulativeDuration() <= btBelow15MinDuration {
		return schema.BTBelow15Min
	}
	if accurateDuration > accurateGPSReportDuration && len(bt) == 0 {
		return schema.GPSOnlyRisk
	}
	return schema.RiskCategoryFromIndex(min(bt.riskCategoryAsInt(), accurate.riskCategoryAsInt()))
}

// MedianDistance returns the duration-weighted median of the contact
// median distances.
func (l ContactList) MedianDistance() float64 {
	if len(l) == 0 {
		return medianSentinel
	}
	values := make([]float64, len(l))
	weights := make([]float64, len(l))
	var total float64
	for i, c := range l {
		values[i] = c.MedianDistance()
		weights[i] = c.Duration()
		total += c.Duration()
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	return weightedMedian(values, weights)
}

// MostCommonPOIs aggregates the raw POI durations over the list and
// keeps the dominant places. A place survives when it holds at least
// the proportion of the total inside time together with the duration
// floor, or the long duration on its own. When nothing survives the
// filtering, the single largest place is kept.
func (l ContactList) MostCommonPOIs(proportion, duration, longDuration float64) map[string]float64 {
	if len(l) == 0 {
		return map[string]float64{schema.CategoryUncertain: 0}
	}
	sums := make(map[string]float64)
	var total float64
	for _, c := range l {
		res := c.poiResult()
		if res == nil {
			sums[schema.CategoryUncertain] += c.Duration()
			continue
		}
		total += res.Inside
		for place, dur := range res.POIs {
			sums[place] += dur
		}
	}
	out := make(map[string]float64)
	for place, dur := range sums {
		if place == schema.CategoryUncertain || place == schema.CategoryNA {
			continue
		}
		if (dur >= proportion*total && dur >= duration) || dur >= longDuration {
			out[place] = dur
		}
	}
	if len(out) == 0 && len(sums) > 0 {
		best, bestDur := "", -1.0
		for place, dur := range sums {
			if dur > bestDur || (dur == bestDur && place < best) {
				best, bestDur = place, dur
			}
		}
		out[best] = bestDur
	}
	return out
}

// nextDayBoundary returns 02:00 UTC on the day after t's calendar day.
func nextDayBoundary(t int64) int64 {
	day := time.Unix(t, 0).UTC().Truncate(24 * time.Hour)
	return day.Add(24*time.Hour + dayAnchorHour*time.Hour).Unix()
}

// dayOf formats the report day a timestamp belongs to: its calendar
// date in UTC.
func dayOf(t int64) string {
	return time.Unix(t, 0).UTC().Format(time.DateOnly)
}

// SplitByDays cuts every contact at the day boundaries and groups the
// pieces by report day.
func (l ContactList) SplitByDays() (map[string]ContactList, error) {
	days := make(map[string]ContactList)
	for _, c := range l {
		for {
			boundary := nextDayBoundary(c.StartTime())
			if boundary >= c.EndTime() {
				break
			}
			head, tail, err := c.Split(boundary)
			if err != nil {
				return nil, err
			}
			day := dayOf(head.StartTime())
			days[day] = append(days[day], head)
			c = tail
		}
		day := dayOf(c.StartTime())
		days[day] = append(days[day], c)
	}
	return days, nil
}

// SortedDays returns the day keys of a split in ascending order.
func SortedDays(days map[string]ContactList) []string {
	out := make([]string, 0, len(days))
	for day := range days {
		out = append(out, day)
	}
	sort.Strings(out)
	return out
}
