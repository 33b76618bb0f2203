package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/geo"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// Bounding box split tuning. A trajectory piece must cover at least the
// minimum duration; short pieces may grow to the wide diameter, longer
// ones stay tight so that candidate queries do not sweep whole cities.
const (
	boxMinPieceDuration = 60
	boxShortSpan        = 180
	boxWideDiameter     = 800.0
	boxTightDiameter    = 200.0
)

// ContactGraph collects the contacts of one patient, one edge per peer.
// Failures during per-peer analysis are recorded instead of aborting the
// whole run.
type ContactGraph struct {
	Patient schema.DeviceID

	mu     sync.Mutex
	Edges  map[schema.DeviceID]ContactList
	Errors map[schema.DeviceID]error
}

// NewContactGraph returns an empty graph for the patient.
func NewContactGraph(patient schema.DeviceID) *ContactGraph {
	return &ContactGraph{
		Patient: patient,
		Edges:   make(map[schema.DeviceID]ContactList),
		Errors:  make(map[schema.DeviceID]error),
	}
}

// AddContacts appends contacts to the peer's edge.
func (g *ContactGraph) AddContacts(peer schema.DeviceID, contacts ContactList) {
	if len(contacts) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Edges[peer] = append(g.Edges[peer], contacts...)
}

// AddError records a per-peer failure. The first error per peer wins.
func (g *ContactGraph) AddError(peer schema.DeviceID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.Errors[peer]; !ok {
		g.Errors[peer] = err
	}
}

// Peers returns the edge keys in ascending order.
func (g *ContactGraph) Peers() []schema.DeviceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	peers := make([]schema.DeviceID, 0, len(g.Edges))
	for peer := range g.Edges {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// TotalContacts counts the contacts over all edges.
func (g *ContactGraph) TotalContacts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int
	for _, edge := range g.Edges {
		n += len(edge)
	}
	return n
}

// trajectoryPiece is one split of a trajectory with its covering box.
type trajectoryPiece struct {
	Box  geo.BoundingBox
	From int64
	To   int64
}

// splitByBoundingBox cuts a trajectory into pieces whose bounding boxes
// stay below the diameter limits, so each piece yields a focused
// candidate query.
func splitByBoundingBox(tr Trajectory) []trajectoryPiece {
	if tr.IsEmpty() {
		return nil
	}
	var pieces []trajectoryPiece
	cur := trajectoryPiece{}
	for i, s := range tr.Samples {
		pointBox := geo.NewBoundingBox(s.Lat, s.Lon, s.Accuracy)
		if i == 0 {
			cur = trajectoryPiece{Box: pointBox, From: s.Time, To: s.Time}
			continue
		}
		candidate := cur.Box.Combine(pointBox)
		limit := boxWideDiameter
		if s.Time-cur.From > boxShortSpan {
			limit = boxTightDiameter
		}
		if candidate.Diameter() > limit && s.Time-cur.From >= boxMinPieceDuration {
			pieces = append(pieces, cur)
			cur = trajectoryPiece{Box: pointBox, From: s.Time, To: s.Time}
			continue
		}
		cur.Box = candidate
		cur.To = s.Time
	}
	return append(pieces, cur)
}

// gatherCandidates queries every trajectory piece for devices seen
// inside its box and merges their samples across pieces.
func gatherCandidates(ctx context.Context, ds contract.DataSource, patient schema.DeviceID, pieces []trajectoryPiece) (map[schema.DeviceID][]schema.Sample, error) {
	candidates := make(map[schema.DeviceID][]schema.Sample)
	for _, piece := range pieces {
		frames, err := ds.GetWithinBoundingBox(ctx, piece.Box,
			time.Unix(piece.From, 0).UTC(), time.Unix(piece.To+1, 0).UTC(), patient)
		if err != nil {
			return nil, err
		}
		for device, samples := range frames {
			candidates[device] = append(candidates[device], samples...)
		}
	}
	for device, samples := range candidates {
		candidates[device] = dedupeSamples(samples)
	}
	return candidates, nil
}

// dedupeSamples sorts samples by time and drops duplicate timestamps,
// which appear when a device fell into more than one piece's box.
func dedupeSamples(samples []schema.Sample) []schema.Sample {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })
	out := samples[:0]
	for i, s := range samples {
		if i > 0 && s.Time == samples[i-1].Time {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BuildGPSGraph finds every peer whose trajectory overlapped the
// patient's and adds their GPS contacts to the graph. Candidate peers
// are analyzed concurrently by a bounded worker pool; per-peer failures
// land in the graph's error map.
func BuildGPSGraph(ctx context.Context, ds contract.DataSource, graph *ContactGraph, patient Trajectory, params schema.AnalysisParams, workers int) error {
	pieces := splitByBoundingBox(patient)
	candidates, err := gatherCandidates(ctx, ds, graph.Patient, pieces)
	if err != nil {
		return err
	}

	type job struct {
		peer    schema.DeviceID
		samples []schema.Sample
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				peerTrajectory := NewTrajectory(j.samples, params.OutlierThreshold)
				contacts, err := GPSContactsFromTrajectories(patient, peerTrajectory, params, ConvolutionDistance)
				if err != nil {
					graph.AddError(j.peer, err)
					continue
				}
				graph.AddContacts(j.peer, contacts.Filter(params.MinDuration, schema.GPSContactType))
			}
		}()
	}
	for peer, samples := range candidates {
		jobs <- job{peer: peer, samples: samples}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

// BuildBTGraph detects the patient's Bluetooth encounters and adds them
// to the graph, enriched with GPS evidence from both trajectories.
func BuildBTGraph(ctx context.Context, ds contract.DataSource, graph *ContactGraph, patient Trajectory, from, to time.Time, th BTThresholds, params schema.AnalysisParams, workers int) error {
	sightings, err := ds.GetBluetoothPairings(ctx, graph.Patient, from, to)
	if err != nil {
		return err
	}
	fetch := func(peer schema.DeviceID) ([]Episode, error) {
		peerSightings, err := ds.GetBluetoothPairings(ctx, peer, from, to)
		if err != nil {
			return nil, err
		}
		raw := groupSightings(peer, peerSightings, BTGroupingGap)
		return describeEpisodes(peer, raw, th), nil
	}
	episodes, err := DetectEpisodes(graph.Patient, sightings, th, fetch)
	if err != nil {
		return err
	}

	perPeer := make(map[schema.DeviceID][]Episode)
	for _, ep := range episodes {
		if float64(ep.End-ep.Start) > params.BTOutlierThreshold {
			continue
		}
		perPeer[ep.Peer] = append(perPeer[ep.Peer], ep)
	}

	type job struct {
		peer     schema.DeviceID
		episodes []Episode
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				samples, err := ds.GetTrajectory(ctx, j.peer, from, to)
				if err != nil {
					graph.AddError(j.peer, err)
					continue
				}
				peerTrajectory := NewTrajectory(samples, params.OutlierThreshold)
				contacts := BTContactsFromEpisodes(patient, peerTrajectory, j.episodes, params)
				graph.AddContacts(j.peer, contacts.Filter(params.BTMinDuration, schema.BTContactType))
			}
		}()
	}
	for peer, eps := range perPeer {
		jobs <- job{peer: peer, episodes: eps}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

// BuildContactGraph runs the GPS and Bluetooth detection for one
// patient over the analysis window and returns the combined graph.
func BuildContactGraph(ctx context.Context, ds contract.DataSource, patient schema.DeviceID, from, to time.Time, params schema.AnalysisParams, workers int) (*ContactGraph, error) {
	samples, err := ds.GetTrajectory(ctx, patient, from, to)
	if err != nil {
		return nil, err
	}
	trajectory := NewTrajectory(samples, params.OutlierThreshold)
	graph := NewContactGraph(patient)

	if err := BuildGPSGraph(ctx, ds, graph, trajectory, params, workers); err != nil {
		return nil, err
	}
	if err := BuildBTGraph(ctx, ds, graph, trajectory, from, to, DefaultBTThresholds(), params, workers); err != nil {
		return nil, err
	}
	return graph, nil
}
