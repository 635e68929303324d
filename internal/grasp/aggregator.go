package grasp

import (
	"context"
	"fmt"
	"math"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/monitoring"
)

// AggregatorConfig holds the filtering thresholds applied to raw detector
// proposals. Defaults match the tuned capture rig values.
type AggregatorConfig struct {
	// BatchSize bounds how many viewpoints are submitted to the detector in
	// one call. This limits the detector's peak memory; batches always run
	// sequentially.
	BatchSize int

	// FloorZ is the height below which a proposal is considered to
	// penetrate the ground; such proposals are lifted by FloorLift.
	FloorZ    float64
	FloorLift float64

	// WorkspaceMinX discards proposals behind the reachable workspace.
	WorkspaceMinX float64

	// MaxAxisTilt is the maximum magnitude of the vertical component of a
	// proposal's local Y axis (the finger-closing axis). Larger values mean
	// the gripper would approach at an implausible roll.
	MaxAxisTilt float64

	// NMS thresholds for both the intra-batch and the final global pass.
	NMS NMSParams
}

// DefaultAggregatorConfig returns the tuned defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BatchSize:     15,
		FloorZ:        -0.16,
		FloorLift:     0.01,
		WorkspaceMinX: 0.22,
		MaxAxisTilt:   0.5,
		NMS: NMSParams{
			TranslationThresh: 0.01,
			RotationThresh:    30 * math.Pi / 180,
		},
	}
}

// Aggregator turns hemisphere viewpoints plus a detector into a
// deduplicated world-frame candidate set.
type Aggregator struct {
	config AggregatorConfig
}

// NewAggregator creates an aggregator with the given config.
func NewAggregator(config AggregatorConfig) *Aggregator {
	return &Aggregator{config: config}
}

// Process runs the full proposal pipeline: sequential batches of viewpoints
// through the detector, world-frame transform, floor correction, workspace
// and orientation filters, per-batch NMS and collision filtering, then one
// global NMS pass sorted descending by geometric score.
//
// An empty batch is not an error; the batch simply contributes nothing.
// The returned set may be empty when every batch filtered to nothing.
func (a *Aggregator) Process(ctx context.Context, detector Detector, obstacles *ObstacleModel, poses []CameraPose) (*CandidateSet, error) {
	if detector == nil {
		return nil, fmt.Errorf("aggregator requires a detector")
	}
	batchSize := a.config.BatchSize
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	all := &CandidateSet{}
	for start := 0; start < len(poses); start += batchSize {
		end := start + batchSize
		if end > len(poses) {
			end = len(poses)
		}
		batch := poses[start:end]

		survivors, err := a.processBatch(ctx, detector, obstacles, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(survivors) == 0 {
			monitoring.Logf("aggregator: batch %d-%d produced no candidates", start, end)
			continue
		}
		all.Add(survivors...)
	}

	all.Candidates = SuppressDuplicates(all.Candidates, a.config.NMS)
	all.SortByGeometricScore()
	monitoring.Logf("aggregator: %d candidates after global NMS over %d viewpoints", all.Len(), len(poses))
	return all, nil
}

func (a *Aggregator) processBatch(ctx context.Context, detector Detector, obstacles *ObstacleModel, batch []CameraPose) ([]Candidate, error) {
	// The detector sees the shared scene geometry expressed in each
	// viewpoint's own frame.
	clouds := make([][]geom.Vec3, len(batch))
	for i, cam := range batch {
		clouds[i] = cam.Pose.Inverse().ApplyAll(obstacles.Points)
	}

	raw, err := detector.Detect(ctx, clouds)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	if len(raw) != len(batch) {
		return nil, fmt.Errorf("detector returned %d result sets for %d viewpoints", len(raw), len(batch))
	}

	var merged []Candidate
	for i, proposals := range raw {
		cam := batch[i]
		for _, p := range proposals {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("viewpoint %d proposal: %w", cam.Index, err)
			}
			p.Pose = cam.Pose.Compose(p.Pose)
			merged = append(merged, p)
		}
	}

	filtered := merged[:0]
	for _, c := range merged {
		// Ground-penetrating grasps get lifted rather than dropped.
		if c.Pose.T.Z < a.config.FloorZ {
			c.Pose.T.Z += a.config.FloorLift
		}
		if c.Pose.T.X <= a.config.WorkspaceMinX {
			continue
		}
		// Orientation sanity: the finger-closing axis must stay near
		// horizontal.
		if math.Abs(c.Pose.R.Col(1).Z) >= a.config.MaxAxisTilt {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	survivors := SuppressDuplicates(filtered, a.config.NMS)
	survivors, err = detector.FilterCollisions(ctx, survivors, obstacles)
	if err != nil {
		return nil, fmt.Errorf("collision filter: %w", err)
	}
	return survivors, nil
}
