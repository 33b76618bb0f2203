package core

import "sort"

// Event is one proximity interval with per-phase exposure durations in
// seconds. After gluing, Duration is the summed exposure and may be
// shorter than the spanned wall-clock range.
type Event struct {
	Start           int64
	Duration        float64
	VeryClose       float64
	Close           float64
	RelativelyClose float64
}

// End returns the event end time.
func (e Event) End() int64 {
	return e.Start + int64(e.Duration)
}

// identical reports whether two events span the same range.
func (e Event) identical(other Event) bool {
	return e.Start == other.Start && e.Duration == other.Duration
}

// contains reports whether the event encloses the other.
func (e Event) contains(other Event) bool {
	return e.Start <= other.Start && e.End() >= other.End()
}

// disjoint reports whether the events do not touch. Back-to-back events
// (end == start) count as overlapping.
func (e Event) disjoint(other Event) bool {
	return e.End() < other.Start || other.End() < e.Start
}

// Isolate resolves overlapping events into disjoint ones, keeping the
// worst case: identical or contained events take the per-phase maximum,
// and partially overlapping events blend per-phase rates over the
// non-overlapping and overlapping parts. Input order does not matter;
// output is start-sorted and disjoint.
func Isolate(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Event, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if cur.disjoint(next) {
			out = append(out, cur)
			cur = next
			continue
		}
		cur = mergeOverlap(cur, next)
	}
	return append(out, cur)
}

// mergeOverlap combines two overlapping events where cur starts first.
func mergeOverlap(cur, next Event) Event {
	if cur.identical(next) || cur.contains(next) {
		return Event{
			Start:           cur.Start,
			Duration:        cur.Duration,
			VeryClose:       max(cur.VeryClose, next.VeryClose),
			Close:           max(cur.Close, next.Close),
			RelativelyClose: max(cur.RelativelyClose, next.RelativelyClose),
		}
	}
	// Partial overlap: next starts before cur is done and ends after it.
	overlap := float64(cur.End() - next.Start)
	durA, durB := cur.Duration, next.Duration
	blend := func(qa, qb float64) float64 {
		return qa/durA*(durA-overlap) +
			max(qa/durA, qb/durB)*overlap +
			qb/durB*(durB-overlap)
	}
	return Event{
		Start:           cur.Start,
		Duration:        float64(next.End() - cur.Start),
		VeryClose:       blend(cur.VeryClose, next.VeryClose),
		Close:           blend(cur.Close, next.Close),
		RelativelyClose: blend(cur.RelativelyClose, next.RelativelyClose),
	}
}

// Glue chains isolated events whose spacing is below gap seconds,
// summing all phase durations. Events must already be disjoint and
// start-sorted, as produced by Isolate.
func Glue(events []Event, gap float64) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(events))
	cur := events[0]
	for _, next := range events[1:] {
		if float64(next.Start-cur.End()) < gap {
			cur = Event{
				Start:           cur.Start,
				Duration:        cur.Duration + next.Duration,
				VeryClose:       cur.VeryClose + next.VeryClose,
				Close:           cur.Close + next.Close,
				RelativelyClose: cur.RelativelyClose + next.RelativelyClose,
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}
