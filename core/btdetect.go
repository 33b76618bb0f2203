package core

import (
	"sort"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// BTMinEpisodeDuration is the floor for episode durations in seconds.
// Sparse advertisement intervals make shorter spans unreliable.
const BTMinEpisodeDuration = 150

// BTGroupingGap is the gap in seconds that splits raw sightings into
// separate episodes.
const BTGroupingGap = 300

// BTThresholds holds per-platform RSSI cutoffs for the proximity buckets.
type BTThresholds struct {
	IOSVeryClose     float64
	IOSClose         float64
	IOSFar           float64
	AndroidVeryClose float64
	AndroidClose     float64
	AndroidFar       float64
}

// DefaultBTThresholds returns the production RSSI cutoffs.
func DefaultBTThresholds() BTThresholds {
	return BTThresholds{
		IOSVeryClose:     -55,
		IOSClose:         -65,
		IOSFar:           -75,
		AndroidVeryClose: -65,
		AndroidClose:     -75,
		AndroidFar:       -85,
	}
}

// Episode is one annotated Bluetooth encounter between the patient and a
// peer. Before classification VeryClose/Close/Far hold measurement
// counts; classification converts them to seconds.
type Episode struct {
	Device          schema.DeviceID
	Peer            schema.DeviceID
	Start           int64
	End             int64
	Duration        float64
	TotalLength     float64
	VeryClose       float64
	Close           float64
	Far             float64
	WithinTwoMeters bool
}

// rawEpisode groups consecutive sightings of one peer.
type rawEpisode struct {
	peer     schema.DeviceID
	start    int64
	end      int64
	rssi     []float64
	platform schema.Platform
}

// groupSightings splits the raw pairing observations of one device into
// per-peer episodes, starting a new episode whenever the gap between
// sightings exceeds groupingGap seconds. Sightings must be time-ordered.
func groupSightings(device schema.DeviceID, sightings []schema.BTSighting, groupingGap int64) []rawEpisode {
	var episodes []rawEpisode
	open := make(map[schema.DeviceID]int) // peer -> index of open episode
	for _, s := range sightings {
		peer := s.PairedDeviceID
		if peer == device {
			peer = s.DeviceID
		}
		if idx, ok := open[peer]; ok && s.Time-episodes[idx].end <= groupingGap {
			episodes[idx].end = s.Time
			episodes[idx].rssi = append(episodes[idx].rssi, s.RSSI)
			episodes[idx].platform = s.Platform
			continue
		}
		episodes = append(episodes, rawEpisode{
			peer:     peer,
			start:    s.Time,
			end:      s.Time,
			rssi:     []float64{s.RSSI},
			platform: s.Platform,
		})
		open[peer] = len(episodes) - 1
	}
	return episodes
}

// describeEpisodes buckets each episode's RSSI measurements by the
// platform thresholds. Episodes from unknown platforms are dropped and
// durations get the BTMinEpisodeDuration floor.
func describeEpisodes(device schema.DeviceID, raw []rawEpisode, th BTThresholds) []Episode {
	episodes := make([]Episode, 0, len(raw))
	for _, r := range raw {
		var vcCut, cCut, fCut float64
		switch r.platform {
		case schema.IOSPlatform:
			vcCut, cCut, fCut = th.IOSVeryClose, th.IOSClose, th.IOSFar
		case schema.AndroidPlatform:
			vcCut, cCut, fCut = th.AndroidVeryClose, th.AndroidClose, th.AndroidFar
		default:
			continue
		}
		start, end := r.start, r.end
		duration := float64(end - start)
		if duration < BTMinEpisodeDuration {
			duration = BTMinEpisodeDuration
			end = start + BTMinEpisodeDuration
		}
		var vc, c, f float64
		for _, rssi := range r.rssi {
			switch {
			case rssi >= vcCut:
				vc++
			case rssi >= cCut:
				c++
			case rssi >= fCut:
				f++
			}
		}
		episodes = append(episodes, Episode{
			Device:      device,
			Peer:        r.peer,
			Start:       start,
			End:         end,
			Duration:    duration,
			TotalLength: float64(len(r.rssi)),
			VeryClose:   vc,
			Close:       c,
			Far:         f,
		})
	}
	return episodes
}

// PeerEpisodeFetch returns the annotated episodes observed by a peer
// device over the analysis window.
type PeerEpisodeFetch func(peer schema.DeviceID) ([]Episode, error)

// FindHiddenEpisodes infers encounters with devices the patient could
// not see directly. iOS backgrounding hides devices from each other, but
// a third phone very close to both sees them. For every peer the patient
// was very close to, the peer's own very-close episodes that overlap the
// shared window yield inferred episodes with proportionally scaled
// counts.
func FindHiddenEpisodes(device schema.DeviceID, observed []Episode, fetch PeerEpisodeFetch) ([]Episode, error) {
	var hidden []Episode
	visited := make(map[schema.DeviceID]bool)
	for _, ep := range observed {
		if ep.VeryClose == 0 || visited[ep.Peer] {
			continue
		}
		visited[ep.Peer] = true
		peerEpisodes, err := fetch(ep.Peer)
		if err != nil {
			return nil, err
		}
		for _, pe := range peerEpisodes {
			if pe.VeryClose == 0 {
				continue
			}
			if pe.Device == device || pe.Peer == device {
				continue
			}
			other := pe.Device
			if other == ep.Peer {
				other = pe.Peer
			}
			for _, own := range observed {
				if own.Peer != ep.Peer || own.VeryClose == 0 {
					continue
				}
				if pe.Start >= own.End || own.Start >= pe.End {
					continue
				}
				durationCurr := float64(pe.End - pe.Start)
				if durationCurr < BTMinEpisodeDuration {
					durationCurr = BTMinEpisodeDuration
				}
				start := max(own.Start, pe.Start)
				end := min(own.End, pe.End)
				duration := float64(end - start)
				if duration < BTMinEpisodeDuration {
					duration = BTMinEpisodeDuration
					end = start + BTMinEpisodeDuration
				}
				scale := duration / durationCurr
				hidden = append(hidden, Episode{
					Device:      device,
					Peer:        other,
					Start:       start,
					End:         end,
					Duration:    duration,
					TotalLength: scale * pe.TotalLength,
					Close:       scale * pe.VeryClose,
				})
			}
		}
	}
	return hidden, nil
}

// CombineEpisodes merges observed and inferred episodes into classified
// ones. The merge policy is phase by phase: overlapping inferred
// episodes extend an observed one and contribute their counts;
// identical-span episodes sum counts; partially overlapping episodes
// take the union range with the maximum counts; inferred episodes
// without any overlap survive on their own.
func CombineEpisodes(observed, hidden []Episode) []Episode {
	// 1. Extend observed episodes by overlapping inferred ones.
	extended := make([]Episode, 0, len(observed))
	for _, ep := range observed {
		var lengthHidden, closeHidden float64
		for _, h := range hidden {
			if h.Peer != ep.Peer {
				continue
			}
			if ep.Start < h.End && h.Start < ep.End {
				ep.Start = min(ep.Start, h.Start)
				ep.End = max(ep.End, h.End)
				lengthHidden = h.TotalLength
				closeHidden = h.Close
			}
		}
		ep.Duration = float64(ep.End - ep.Start)
		if ep.Duration < BTMinEpisodeDuration {
			ep.Duration = BTMinEpisodeDuration
		}
		ep.TotalLength += lengthHidden
		ep.Close += closeHidden
		extended = append(extended, ep)
	}

	// 2. Merge episodes spanning the exact same range.
	identical := mergeEpisodes(extended, func(a, b Episode) bool {
		return a.Start == b.Start && a.End == b.End
	}, sumCounts)

	// 3. Merge partially overlapping episodes.
	grouped := mergeEpisodes(identical, overlapping, maxCounts)

	// 4. Keep inferred episodes that overlap nothing.
	var standalone []Episode
	for _, h := range hidden {
		overlaps := false
		for _, g := range grouped {
			if g.Peer == h.Peer && h.Start < g.End && g.Start < h.End {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		if h.Duration < BTMinEpisodeDuration {
			h.Duration = BTMinEpisodeDuration
			h.End = h.Start + BTMinEpisodeDuration
		}
		standalone = append(standalone, h)
	}
	standalone = mergeEpisodes(standalone, overlapping, maxCounts)
	grouped = append(grouped, standalone...)

	// 5. Classify.
	for i := range grouped {
		grouped[i] = classify(grouped[i])
	}
	sort.SliceStable(grouped, func(i, j int) bool { return grouped[i].Start < grouped[j].Start })
	return grouped
}

func overlapping(a, b Episode) bool {
	return a.Start < b.End && b.Start < a.End
}

func sumCounts(a, b Episode) Episode {
	a.TotalLength += b.TotalLength
	a.VeryClose += b.VeryClose
	a.Close += b.Close
	a.Far += b.Far
	return a
}

func maxCounts(a, b Episode) Episode {
	a.Start = min(a.Start, b.Start)
	a.End = max(a.End, b.End)
	a.Duration = float64(a.End - a.Start)
	a.TotalLength = max(a.TotalLength, b.TotalLength)
	a.VeryClose = max(a.VeryClose, b.VeryClose)
	a.Close = max(a.Close, b.Close)
	a.Far = max(a.Far, b.Far)
	return a
}

// mergeEpisodes greedily merges same-peer episodes matching the
// predicate, earlier episodes absorbing later ones.
func mergeEpisodes(episodes []Episode, match func(a, b Episode) bool, merge func(a, b Episode) Episode) []Episode {
	merged := make([]Episode, 0, len(episodes))
	visited := make([]bool, len(episodes))
	for i, ep := range episodes {
		if visited[i] {
			continue
		}
		for j := i + 1; j < len(episodes); j++ {
			if visited[j] || episodes[j].Peer != ep.Peer {
				continue
			}
			if match(ep, episodes[j]) {
				visited[j] = true
				ep = merge(ep, episodes[j])
			}
		}
		merged = append(merged, ep)
	}
	return merged
}

// classify converts measurement counts into phase durations. An episode
// dominated by one bucket spends its whole duration there; sustained
// close time of 15 minutes also counts as close throughout. Episodes
// with minority close evidence are zeroed but keep the within-two-meters
// flag.
func classify(ep Episode) Episode {
	duration := ep.Duration
	var durationClose float64
	if ep.TotalLength > 0 {
		durationClose = duration * (ep.VeryClose + ep.Close) / ep.TotalLength
	}
	switch {
	case ep.TotalLength < 2*ep.VeryClose:
		ep.VeryClose, ep.Close, ep.Far = duration, 0, 0
		ep.WithinTwoMeters = true
	case ep.TotalLength < 2*(ep.VeryClose+ep.Close):
		ep.VeryClose, ep.Close, ep.Far = 0, duration, 0
		ep.WithinTwoMeters = true
	case durationClose >= 900:
		ep.VeryClose, ep.Close, ep.Far = 0, duration, 0
		ep.WithinTwoMeters = true
	case ep.TotalLength < 2*ep.Far:
		ep.VeryClose, ep.Close, ep.Far = 0, 0, duration
		ep.WithinTwoMeters = true
	case ep.VeryClose > 0 || ep.Close > 0:
		ep.VeryClose, ep.Close, ep.Far = 0, 0, 0
		ep.WithinTwoMeters = true
	default:
		ep.VeryClose, ep.Close, ep.Far = 0, 0, 0
		ep.WithinTwoMeters = false
	}
	return ep
}

// DetectEpisodes runs the full Bluetooth detection for one device:
// grouping, annotation, hidden-device inference and combination.
func DetectEpisodes(device schema.DeviceID, sightings []schema.BTSighting, th BTThresholds, fetch PeerEpisodeFetch) ([]Episode, error) {
	raw := groupSightings(device, sightings, BTGroupingGap)
	observed := describeEpisodes(device, raw, th)
	hidden, err := FindHiddenEpisodes(device, observed, fetch)
	if err != nil {
		return nil, err
	}
	return CombineEpisodes(observed, hidden), nil
}

// Event converts an episode to a merge event.
func (ep Episode) Event() Event {
	return Event{
		Start:           ep.Start,
		Duration:        float64(ep.End - ep.Start),
		VeryClose:       ep.VeryClose,
		Close:           ep.Close,
		RelativelyClose: ep.Far,
	}
}
