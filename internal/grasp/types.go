// Package grasp implements the proposal half of the planning pipeline:
// viewpoint generation, batched detector invocation, world-frame filtering,
// near-duplicate suppression and semantic score fusion. The output is a
// ranked candidate set handed to the planner package.
package grasp

import (
	"context"
	"fmt"
	"sort"

	"github.com/fieldworks/graspplan/internal/geom"
)

// CameraPose is one viewpoint on the capture hemisphere. Immutable once
// generated; Index is the position within the generated grid.
type CameraPose struct {
	Pose  geom.Pose `json:"pose"`
	Index int       `json:"index"`
}

// Candidate is a single proposed grasp with its geometry descriptors and
// scores. Translation and rotation are world frame once the aggregator has
// run; scores live in [0,1].
type Candidate struct {
	Pose   geom.Pose `json:"pose"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Depth  float64   `json:"depth"`

	GeometricScore float64 `json:"geometric_score"`
	SemanticScore  float64 `json:"semantic_score"`
	FusedScore     float64 `json:"fused_score"`
}

// Validate checks the structural invariants of a candidate record.
func (c Candidate) Validate() error {
	if !c.Pose.R.IsOrthonormal() {
		return fmt.Errorf("candidate rotation not orthonormal")
	}
	if !c.Pose.T.IsFinite() {
		return fmt.Errorf("candidate translation not finite: %+v", c.Pose.T)
	}
	if c.Width <= 0 || c.Height <= 0 || c.Depth <= 0 {
		return fmt.Errorf("candidate extents must be positive: w=%g h=%g d=%g", c.Width, c.Height, c.Depth)
	}
	for name, s := range map[string]float64{
		"geometric": c.GeometricScore,
		"semantic":  c.SemanticScore,
		"fused":     c.FusedScore,
	} {
		if s < 0 || s > 1 {
			return fmt.Errorf("%s score %g outside [0,1]", name, s)
		}
	}
	return nil
}

// BoundingBox returns the oriented box spanned by the gripper closing
// region: depth along the approach axis, width between the fingers, height
// across the finger tips.
func (c Candidate) BoundingBox() geom.OrientedBox {
	return geom.OrientedBox{
		Pose:   c.Pose,
		Extent: geom.Vec3{X: c.Depth, Y: c.Width, Z: c.Height},
	}
}

// CandidateSet is an ordered collection of deduplicated candidates.
// After NMS any two members differ by at least the translation threshold or
// the rotation threshold used to build the set.
type CandidateSet struct {
	Candidates []Candidate `json:"candidates"`
}

// Len returns the number of candidates.
func (s *CandidateSet) Len() int { return len(s.Candidates) }

// Add appends candidates without deduplication. Callers run NMS afterwards.
func (s *CandidateSet) Add(cs ...Candidate) {
	s.Candidates = append(s.Candidates, cs...)
}

// SortByGeometricScore orders the set descending by geometric score.
// Ties keep a deterministic order by translation (X, then Y, then Z) so
// repeated runs produce identical output.
func (s *CandidateSet) SortByGeometricScore() {
	sort.SliceStable(s.Candidates, func(i, j int) bool {
		a, b := s.Candidates[i], s.Candidates[j]
		if a.GeometricScore != b.GeometricScore {
			return a.GeometricScore > b.GeometricScore
		}
		if a.Pose.T.X != b.Pose.T.X {
			return a.Pose.T.X < b.Pose.T.X
		}
		if a.Pose.T.Y != b.Pose.T.Y {
			return a.Pose.T.Y < b.Pose.T.Y
		}
		return a.Pose.T.Z < b.Pose.T.Z
	})
}

// SortByFusedScore orders the set descending by fused score with the same
// deterministic tie-break as SortByGeometricScore.
func (s *CandidateSet) SortByFusedScore() {
	sort.SliceStable(s.Candidates, func(i, j int) bool {
		a, b := s.Candidates[i], s.Candidates[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.Pose.T.X != b.Pose.T.X {
			return a.Pose.T.X < b.Pose.T.X
		}
		if a.Pose.T.Y != b.Pose.T.Y {
			return a.Pose.T.Y < b.Pose.T.Y
		}
		return a.Pose.T.Z < b.Pose.T.Z
	})
}

// Detector is the learned grasp-proposal collaborator. Implementations are
// expected to be expensive and synchronous; the aggregator bounds peak
// memory by batching calls.
type Detector interface {
	// Detect takes one local-frame point cloud per viewpoint and returns
	// exactly one raw candidate set per cloud, in the same order. Returned
	// candidates are in the viewpoint's local frame.
	Detect(ctx context.Context, clouds [][]geom.Vec3) ([][]Candidate, error)

	// FilterCollisions removes candidates that collide with the obstacle
	// model according to the detector's local collision check.
	FilterCollisions(ctx context.Context, candidates []Candidate, obstacles *ObstacleModel) ([]Candidate, error)
}

// ObstacleModel is the world-frame collision geometry for one planning
// pass. It is read-only for the duration of the pass.
type ObstacleModel struct {
	Points []geom.Vec3 `json:"points"`
}

// RelevancyField is the semantic signal produced by the relevancy-field
// collaborator for a text query: a point set with per-point scores plus the
// resolved pick point and, for two-object primitives, a place point.
type RelevancyField struct {
	Points     []geom.Vec3 `json:"points"`
	Scores     []float64   `json:"scores"`
	PickPoint  geom.Vec3   `json:"pick_point"`
	PlacePoint *geom.Vec3  `json:"place_point,omitempty"`
}

// Validate checks that points and scores line up and scores are
// non-negative.
func (f *RelevancyField) Validate() error {
	if len(f.Points) != len(f.Scores) {
		return fmt.Errorf("relevancy field has %d points but %d scores", len(f.Points), len(f.Scores))
	}
	for i, s := range f.Scores {
		if s < 0 {
			return fmt.Errorf("relevancy score %d is negative: %g", i, s)
		}
	}
	return nil
}
