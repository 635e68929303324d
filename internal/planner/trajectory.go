package planner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BoundaryTol is the maximum joint-space distance allowed between the last
// configuration of one segment and the first configuration of the next.
const BoundaryTol = 1e-6

// Stage labels one segment of a composed trajectory.
type Stage string

const (
	StageApproach Stage = "approach"
	StageLift     Stage = "lift"
	StagePlace    Stage = "place"
	StagePour     Stage = "pour"
	StageTwist    Stage = "twist"
)

// Segment is an ordered sequence of joint configurations tagged with its
// stage.
type Segment struct {
	Stage   Stage
	Configs []Config
}

// Trajectory is the concatenation of stage segments in the primitive's
// fixed order, flattened for playback.
type Trajectory struct {
	Stages  []Stage
	Configs []Config
}

// Len returns the number of configurations.
func (t *Trajectory) Len() int { return len(t.Configs) }

// Concatenate joins segments into one playable trajectory. Segments must be
// non-empty and consecutive segments must share their boundary
// configuration within BoundaryTol; the synthesizer guarantees this by
// seeding each stage from the previous stage's final configuration.
func Concatenate(segments []Segment) (*Trajectory, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments to concatenate")
	}
	traj := &Trajectory{}
	for i, seg := range segments {
		if len(seg.Configs) == 0 {
			return nil, fmt.Errorf("segment %d (%s) is empty", i, seg.Stage)
		}
		if i > 0 {
			prev := traj.Configs[len(traj.Configs)-1]
			next := seg.Configs[0]
			if len(prev) != len(next) {
				return nil, fmt.Errorf("segment %d (%s) has %d joints, previous has %d", i, seg.Stage, len(next), len(prev))
			}
			if floats.Distance(prev, next, 2) > BoundaryTol {
				return nil, fmt.Errorf("segment %d (%s) does not start at the previous segment's end", i, seg.Stage)
			}
		}
		traj.Stages = append(traj.Stages, seg.Stage)
		traj.Configs = append(traj.Configs, seg.Configs...)
	}
	return traj, nil
}

// Sample returns the configuration at normalised position t in [0,1]:
// index round(t*(len-1)). t is clamped, so Sample(0) is the first
// configuration and Sample(1) the last.
func (t *Trajectory) Sample(pos float64) Config {
	if len(t.Configs) == 0 {
		return nil
	}
	if pos < 0 {
		pos = 0
	} else if pos > 1 {
		pos = 1
	}
	idx := int(math.Round(pos * float64(len(t.Configs)-1)))
	return t.Configs[idx]
}

// PathLength is the joint-space displacement between a path's first and
// last configurations. It is the primary feasibility ranking criterion:
// shorter displacement means less reconfiguration to reach the grasp.
func PathLength(path []Config) float64 {
	if len(path) < 2 {
		return 0
	}
	return floats.Distance(path[0], path[len(path)-1], 2)
}
