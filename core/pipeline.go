package core

import (
	"context"
	"fmt"
	"time"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// PipelineDeps are the external services an analysis run needs. Only
// the data source is mandatory: without a feature service POIs stay
// uncertain, without a run store runs are not tracked.
type PipelineDeps struct {
	Source   contract.DataSource
	Features contract.FeatureService
	Runs     contract.RunStore
}

// AnalysisResult is the outcome of one pipeline run. Exactly one of
// Report and DailyReport is set, matching the request.
type AnalysisResult struct {
	Report      *schema.Report
	DailyReport *schema.DailyReport
	Graph       *ContactGraph
	RunID       int64
	Elapsed     time.Duration
}

// RunAnalysis executes the full pipeline for one request: contact graph
// construction, POI resolution and report assembly, with the run
// recorded in the run store.
func RunAnalysis(ctx context.Context, cfg *contract.Config, deps PipelineDeps, req schema.AnalysisRequest, version string) (*AnalysisResult, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("analysis requires a data source")
	}
	from, to := req.TimeFrom, req.TimeTo
	if from.IsZero() || to.IsZero() {
		from, to = cfg.ResolveWindow(time.Now())
	}
	log := contract.Logger.With().
		Str("device", string(req.DeviceID)).
		Time("from", from).Time("to", to).Logger()

	started := time.Now()
	var runID int64
	if deps.Runs != nil {
		id, err := deps.Runs.BeginRun(req, started)
		if err != nil {
			log.Warn().Err(err).Msg("run tracking unavailable")
		} else {
			runID = id
		}
	}

	// --- 1. Contact graph ---
	log.Info().Msg("building contact graph")
	graph, err := BuildContactGraph(ctx, deps.Source, req.DeviceID, from, to, cfg.Params, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("building contact graph: %w", err)
	}
	log.Info().
		Int("peers", len(graph.Edges)).
		Int("contacts", graph.TotalContacts()).
		Int("failures", len(graph.Errors)).
		Msg("contact graph ready")
	for peer, peerErr := range graph.Errors {
		log.Warn().Str("peer", string(peer)).Err(peerErr).Msg("peer analysis failed")
	}

	// --- 2. Report assembly ---
	builder := &ReportBuilder{
		Params:  cfg.Params,
		Version: version,
		Testing: req.Testing || cfg.Testing,
	}
	if deps.Features != nil {
		builder.Resolver = NewPOIResolver(deps.Features, cfg.Params.POIs)
	}
	if cfg.DeviceInfo {
		info, err := deps.Source.GetDeviceInfo(ctx, req.DeviceID)
		if err != nil {
			log.Warn().Err(err).Msg("device info unavailable")
		} else {
			builder.Device = info
		}
	}

	result := &AnalysisResult{Graph: graph, RunID: runID}
	if req.Daily || cfg.Daily {
		result.DailyReport, err = builder.BuildDaily(ctx, graph)
	} else {
		result.Report, err = builder.Build(ctx, graph)
	}
	if err != nil {
		return nil, fmt.Errorf("assembling report: %w", err)
	}
	result.Elapsed = time.Since(started)

	if deps.Runs != nil && runID != 0 {
		if err := deps.Runs.EndRun(runID, time.Now(), len(graph.Edges), graph.TotalContacts(), len(graph.Errors)); err != nil {
			log.Warn().Err(err).Msg("closing run record failed")
		}
	}
	log.Info().Dur("elapsed", result.Elapsed).Msg("analysis finished")
	return result, nil
}
