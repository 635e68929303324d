package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/fieldworks/graspplan/internal/config"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/monitoring"
	"github.com/fieldworks/graspplan/internal/planner"
)

// acquireCandidates returns the fused, selected candidate set for the scene,
// serving from the cache when a previous run already computed it. A cache
// miss runs the full acquisition: hemisphere viewpoints, batched detection,
// fusion against the relevancy field, quantile selection and rescale.
func acquireCandidates(ctx context.Context, cfg *config.TuningConfig, cache *grasp.CandidateCache, detector grasp.Detector, scene *SceneFile) (*grasp.CandidateSet, error) {
	if cache != nil {
		set, ok, err := cache.Load(scene.Name)
		if err != nil {
			return nil, fmt.Errorf("candidate cache: %w", err)
		}
		if ok {
			monitoring.Logf("pipeline: loaded %d cached candidates for scene %s", set.Len(), scene.Name)
			return set, nil
		}
	}

	params := grasp.DefaultHemisphereParams(scene.TableCenter)
	params.Radius = cfg.GetHemisphereRadius()
	params.ThetaCount = cfg.GetHemisphereGrid()
	params.PhiCount = cfg.GetHemisphereGrid()
	params.PhiMax = cfg.GetPhiMaxDegrees() * math.Pi / 180

	poses, err := grasp.GenerateHemisphere(params)
	if err != nil {
		return nil, fmt.Errorf("hemisphere: %w", err)
	}

	agg := grasp.NewAggregator(grasp.AggregatorConfig{
		BatchSize:     cfg.GetDetectorBatch(),
		FloorZ:        cfg.GetFloorHeight(),
		FloorLift:     cfg.GetFloorLift(),
		WorkspaceMinX: cfg.GetWorkspaceMinX(),
		MaxAxisTilt:   cfg.GetMaxAxisTilt(),
		NMS: grasp.NMSParams{
			TranslationThresh: cfg.GetNMSTranslation(),
			RotationThresh:    cfg.GetNMSRotationDegrees() * math.Pi / 180,
		},
	})
	set, err := agg.Process(ctx, detector, &scene.Obstacles, poses)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("no grasp candidates survived filtering for scene %s", scene.Name)
	}

	if err := grasp.Fuse(set, &scene.Relevancy, cfg.GetFusionWeight()); err != nil {
		return nil, fmt.Errorf("fuse: %w", err)
	}
	selected, err := grasp.Select(set, cfg.GetSelectionQuantile())
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	if selected.Len() == 0 {
		return nil, fmt.Errorf("quantile %g selection kept none of %d candidates", cfg.GetSelectionQuantile(), set.Len())
	}
	grasp.Rescale(selected)
	monitoring.Logf("pipeline: selected %d of %d candidates for scene %s", selected.Len(), set.Len(), scene.Name)

	if cache != nil {
		raw, _ := json.Marshal(params)
		if err := cache.Store(scene.Name, selected, raw); err != nil {
			monitoring.Logf("pipeline: cache write failed: %v", err)
		}
	}
	return selected, nil
}

// synthesize runs trajectory synthesis over a selected candidate set under
// the configured planning timeout.
func synthesize(ctx context.Context, cfg *config.TuningConfig, mp planner.MotionPlanner, sink planner.AttemptSink, scene *SceneFile, primitive planner.Primitive, set *grasp.CandidateSet) (*planner.Result, error) {
	synth := planner.NewSynthesizer(mp, planner.SynthesizerConfig{
		RotationTrials: cfg.GetRotationTrials(),
		LiftHeight:     cfg.GetLiftHeight(),
		ToolClearance:  cfg.GetToolClearance(),
		RotationPivot:  cfg.GetRotationPivot(),
		PathLengthTol:  1e-9,
	}, sink)

	planCtx, cancel := context.WithTimeout(ctx, cfg.GetPlanTimeout())
	defer cancel()

	return synth.Synthesize(planCtx, planner.Request{
		Candidates: set,
		Primitive:  primitive,
		Obstacles:  &scene.Obstacles,
		Field:      &scene.Relevancy,
		Start:      scene.StartConfig,
	})
}

// teeSink fans attempt telemetry out to several sinks, typically the
// in-memory log served by the monitor plus the database recorder.
type teeSink struct {
	sinks []planner.AttemptSink
}

func (t *teeSink) RecordAttempt(a planner.Attempt) {
	for _, s := range t.sinks {
		if s != nil {
			s.RecordAttempt(a)
		}
	}
}
