package core

import (
	"fmt"
	"sort"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// BTContact is an encounter detected from Bluetooth proximity phases,
// optionally enriched with GPS evidence from both trajectories.
type BTContact struct {
	poiCache
	// Trajectories reduced to the interpolated in-contact points.
	T1, T2 Trajectory

	start                             int64
	veryClose, close, relativelyClose float64
	durationWithGPS                   float64

	cd         *ContactDetails // Times/Accuracy/Locations only
	transports [][2]schema.TransportMode
}

// Nominal phase distances in meters, used for distance estimates.
const (
	veryCloseDistance       = 1.0
	closeDistance           = 2.0
	relativelyCloseDistance = 5.0
)

// NewBTContact builds a contact from a merged proximity event and the
// two trajectories around it. GPS samples inside the contact window are
// interpolated onto a coarse grid so POI resolution has locations to
// work with; the grid never bridges more than the configured
// interpolation step at the edges.
func NewBTContact(t1, t2 Trajectory, ev Event, params schema.AnalysisParams) *BTContact {
	c := &BTContact{
		start:           ev.Start,
		veryClose:       ev.VeryClose,
		close:           ev.Close,
		relativelyClose: ev.RelativelyClose,
		cd:              &ContactDetails{},
	}
	start, end := c.StartTime(), c.EndTime()

	slack := int64(params.SlackTime)
	t1 = t1.Filter(start-slack, end+slack)
	t2 = t2.Filter(start-slack, end+slack)

	union := UnionOfTimestamps(t1.Times(), t2.Times())
	var inContact []int64
	for _, t := range union {
		if t >= start && t <= end {
			inContact = append(inContact, t)
		}
	}
	if len(inContact) == 0 {
		c.T1, c.T2 = Trajectory{}, Trajectory{}
		return c
	}

	step := int64(params.GPSInterpolationForBT)
	startInfo := max(start, inContact[0]-step)
	endInfo := min(end, inContact[len(inContact)-1]+step)
	grid := make([]int64, 0, (endInfo-startInfo)/step+2)
	for t := startInfo; t < endInfo; t += step {
		grid = append(grid, t)
	}
	grid = append(grid, endInfo)
	newTimes := UnionOfTimestamps(grid, inContact)

	c.durationWithGPS = c.Duration() - float64(newTimes[0]-start) - float64(end-newTimes[len(newTimes)-1])

	hardGap := int64(params.MaxInterpolationGapH * 3600)
	c.T1 = keptTrajectory(t1, newTimes, params.AllowedJump, hardGap)
	c.T2 = keptTrajectory(t2, newTimes, params.AllowedJump, hardGap)

	c.mergeEvidence()
	c.transports = transportPairs(c.T1, c.T2, c.cd.Times)
	return c
}

// keptTrajectory interpolates a trajectory onto times and keeps the
// resolvable points, annotated with the nearest transport mode.
func keptTrajectory(tr Trajectory, times []int64, allowedJump float64, hardGap int64) Trajectory {
	points := tr.RestrictedUpsampling(times, allowedJump, hardGap)
	var samples []schema.Sample
	for i, p := range points {
		if p.IsZero() {
			continue
		}
		samples = append(samples, schema.Sample{
			Time:      times[i],
			Lat:       p.Lat,
			Lon:       p.Lon,
			Accuracy:  p.Accuracy,
			Transport: tr.ModeOfTransport(times[i]),
		})
	}
	return Trajectory{Samples: samples}
}

// mergeEvidence joins both kept trajectories into the contact evidence,
// preferring the patient's sample when both report the same time.
func (c *BTContact) mergeEvidence() {
	merged := make(map[int64]schema.Sample, len(c.T1.Samples)+len(c.T2.Samples))
	for _, s := range c.T2.Samples {
		merged[s.Time] = s
	}
	for _, s := range c.T1.Samples {
		merged[s.Time] = s
	}
	times := make([]int64, 0, len(merged))
	for t := range merged {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	for _, t := range times {
		s := merged[t]
		c.cd.Times = append(c.cd.Times, t)
		c.cd.Accuracy = append(c.cd.Accuracy, [2]float64{s.Accuracy, s.Accuracy})
		c.cd.Locations = append(c.cd.Locations, [2]float64{s.Lat, s.Lon})
	}
}

// Type returns the bt contact type.
func (c *BTContact) Type() schema.ContactType { return schema.BTContactType }

// StartTime returns the contact start.
func (c *BTContact) StartTime() int64 { return c.start }

// EndTime returns the contact end, derived from the phase durations.
func (c *BTContact) EndTime() int64 { return c.start + int64(c.Duration()) }

// Duration sums the three phase durations.
func (c *BTContact) Duration() float64 { return c.veryClose + c.close + c.relativelyClose }

// DurationWithGPS is the part of the contact covered by GPS evidence.
func (c *BTContact) DurationWithGPS() float64 { return c.durationWithGPS }

// Details returns the GPS enrichment of the contact.
func (c *BTContact) Details() *ContactDetails { return c.cd }

// TransportPairs returns the per-timestep transport modes.
func (c *BTContact) TransportPairs() [][2]schema.TransportMode { return c.transports }

// VeryCloseDuration returns seconds spent within about one meter.
func (c *BTContact) VeryCloseDuration() float64 { return c.veryClose }

// CloseDuration returns seconds spent within about two meters.
func (c *BTContact) CloseDuration() float64 { return c.close }

// RelativelyCloseDuration returns seconds spent within about five meters.
func (c *BTContact) RelativelyCloseDuration() float64 { return c.relativelyClose }

// AverageDistance weights the nominal phase distances by their durations.
func (c *BTContact) AverageDistance() float64 {
	if c.Duration() == 0 {
		return 0
	}
	return (veryCloseDistance*c.veryClose + closeDistance*c.close + relativelyCloseDistance*c.relativelyClose) / c.Duration()
}

// MedianDistance returns the median of the phase distance distribution,
// never below one meter.
func (c *BTContact) MedianDistance() float64 {
	if c.Duration() == 0 {
		return veryCloseDistance
	}
	med := weightedMedian(
		[]float64{veryCloseDistance, closeDistance, relativelyCloseDistance},
		[]float64{c.veryClose, c.close, c.relativelyClose},
	)
	return max(veryCloseDistance, med)
}

// AverageAccuracy is one meter by convention: Bluetooth proximity is
// considered reliable evidence.
func (c *BTContact) AverageAccuracy() float64 { return 1 }

// RiskScore converts phase durations to minutes over the squared
// nominal distances.
func (c *BTContact) RiskScore() float64 {
	return c.close/60/(closeDistance*closeDistance) +
		c.veryClose/60/(veryCloseDistance*veryCloseDistance) +
		c.relativelyClose/60/(relativelyCloseDistance*relativelyCloseDistance)
}

// RiskThresholds returns the bt category thresholds from high to low.
func (c *BTContact) RiskThresholds() [3]float64 { return [3]float64{10.0, 7.5, 0.6} }

// Split cuts the contact at t, dividing the phase durations
// proportionally to the two time fractions and slicing the GPS evidence
// at the boundary.
func (c *BTContact) Split(t int64) (Contact, Contact, error) {
	if t <= c.StartTime() || t >= c.EndTime() {
		return nil, nil, fmt.Errorf("split time %d outside of contact time %d - %d", t, c.StartTime(), c.EndTime())
	}
	frac2 := float64(c.EndTime()-t) / c.Duration()
	frac1 := 1 - frac2

	c1 := c.withPhases(c.start, frac1)
	c2 := c.withPhases(t, frac2)

	point := sort.Search(len(c.cd.Times), func(i int) bool { return c.cd.Times[i] >= t })
	c1.adoptEvidence(c, 0, point, t, true)
	c2.adoptEvidence(c, point, len(c.cd.Times), t, false)
	return c1, c2, nil
}

// withPhases copies the contact with scaled phase durations.
func (c *BTContact) withPhases(start int64, frac float64) *BTContact {
	return &BTContact{
		start:           start,
		veryClose:       c.veryClose * frac,
		close:           c.close * frac,
		relativelyClose: c.relativelyClose * frac,
		cd:              &ContactDetails{},
	}
}

// adoptEvidence takes over a slice of the parent's GPS evidence and the
// matching trajectory halves.
func (part *BTContact) adoptEvidence(parent *BTContact, lo, hi int, t int64, before bool) {
	if before {
		part.T1 = parent.T1.Filter(parent.T1.Start(), t-1)
		part.T2 = parent.T2.Filter(parent.T2.Start(), t-1)
	} else {
		part.T1 = parent.T1.Filter(t, parent.T1.End())
		part.T2 = parent.T2.Filter(t, parent.T2.End())
	}
	if hi > lo {
		part.cd = &ContactDetails{
			Times:     parent.cd.Times[lo:hi],
			Accuracy:  parent.cd.Accuracy[lo:hi],
			Locations: parent.cd.Locations[lo:hi],
		}
		part.transports = parent.transports[lo:hi]
	}
	// GPS cover scales with the evidence the part keeps.
	covered := float64(0)
	if len(part.cd.Times) > 1 {
		covered = float64(part.cd.Times[len(part.cd.Times)-1] - part.cd.Times[0])
	}
	if covered > part.Duration() {
		covered = part.Duration()
	}
	part.durationWithGPS = covered
}

// BTContactsFromEpisodes turns classified episodes with one peer into
// contacts: overlapping episodes are isolated, glued by the configured
// gap, and enriched with GPS evidence.
func BTContactsFromEpisodes(t1, t2 Trajectory, episodes []Episode, params schema.AnalysisParams) ContactList {
	if len(episodes) == 0 {
		return nil
	}
	events := make([]Event, len(episodes))
	for i, ep := range episodes {
		events[i] = ep.Event()
	}
	merged := Glue(Isolate(events), params.BTGlueBelowDuration)

	var contacts ContactList
	for _, ev := range merged {
		contacts = append(contacts, NewBTContact(t1, t2, ev, params))
	}
	return contacts
}
