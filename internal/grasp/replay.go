package grasp

import (
	"context"
	"fmt"

	"github.com/fieldworks/graspplan/internal/geom"
)

// ReplayDetector serves pre-recorded proposals instead of running model
// inference, mirroring how recorded captures are replayed elsewhere in the
// toolchain. Recordings hold what a live detector would have returned: one
// local-frame proposal list per viewpoint, in viewpoint order. Call Detect
// with batches in the same pose order the recording used.
type ReplayDetector struct {
	// PerView holds one local-frame proposal list per viewpoint.
	PerView [][]Candidate

	// CollisionRadius, when positive, drops candidates whose grasp centre
	// sits closer than this to any obstacle point during FilterCollisions.
	CollisionRadius float64

	next int
}

// NewReplayDetector creates a replay detector over recorded per-view
// proposals.
func NewReplayDetector(perView [][]Candidate) *ReplayDetector {
	return &ReplayDetector{PerView: perView}
}

// Reset rewinds the replay to the first viewpoint.
func (d *ReplayDetector) Reset() { d.next = 0 }

// Detect implements Detector by replaying the recorded proposals for the
// next len(clouds) viewpoints.
func (d *ReplayDetector) Detect(ctx context.Context, clouds [][]geom.Vec3) ([][]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next+len(clouds) > len(d.PerView) {
		return nil, fmt.Errorf("replay exhausted: %d viewpoints recorded, %d requested", len(d.PerView), d.next+len(clouds))
	}
	out := make([][]Candidate, len(clouds))
	for i := range clouds {
		out[i] = append([]Candidate(nil), d.PerView[d.next+i]...)
	}
	d.next += len(clouds)
	return out, nil
}

// FilterCollisions implements the detector's local collision check with a
// simple clearance-radius test against the obstacle cloud.
func (d *ReplayDetector) FilterCollisions(ctx context.Context, candidates []Candidate, obstacles *ObstacleModel) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.CollisionRadius <= 0 || obstacles == nil {
		return candidates, nil
	}
	kept := candidates[:0]
	for _, c := range candidates {
		collides := false
		for _, p := range obstacles.Points {
			if c.Pose.T.Dist(p) < d.CollisionRadius {
				collides = true
				break
			}
		}
		if !collides {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

var _ Detector = (*ReplayDetector)(nil)
