package planner

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/monitoring"
)

// SyntheticPlanner is a deterministic stand-in for a real motion planner,
// used for offline replay and demos. Configurations are the Cartesian
// tool position [x y z]; paths are straight-line interpolations. A target
// is feasible when it is above the table plane, within reach of the base,
// and clear of every obstacle point.
type SyntheticPlanner struct {
	// Steps is the number of configurations per planned segment, minimum 2.
	Steps int

	// Reach is the maximum tool distance from Base. Zero disables the check.
	Reach float64

	// Clearance is the minimum allowed distance from the target to any
	// obstacle point. Zero disables the check.
	Clearance float64

	// Base is the manipulator base position.
	Base geom.Vec3

	// TableZ is the height below which targets are rejected.
	TableZ float64

	lastVisualized Config
}

var _ MotionPlanner = (*SyntheticPlanner)(nil)

// NewSyntheticPlanner returns a planner with workable defaults.
func NewSyntheticPlanner() *SyntheticPlanner {
	return &SyntheticPlanner{
		Steps:     20,
		Reach:     1.2,
		Clearance: 0.01,
		TableZ:    -0.2,
	}
}

func (p *SyntheticPlanner) feasible(target geom.Vec3, obstacles *grasp.ObstacleModel) bool {
	if target.Z < p.TableZ {
		return false
	}
	if p.Reach > 0 && target.Dist(p.Base) > p.Reach {
		return false
	}
	if p.Clearance > 0 && obstacles != nil {
		for _, o := range obstacles.Points {
			if target.Dist(o) < p.Clearance {
				return false
			}
		}
	}
	return true
}

// line interpolates from start to end over p.Steps configurations,
// inclusive of both endpoints.
func (p *SyntheticPlanner) line(start Config, end geom.Vec3) []Config {
	steps := p.Steps
	if steps < 2 {
		steps = 2
	}
	from := geom.Vec3{X: start[0], Y: start[1], Z: start[2]}
	path := make([]Config, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		path[i] = Config{
			from.X + t*(end.X-from.X),
			from.Y + t*(end.Y-from.Y),
			from.Z + t*(end.Z-from.Z),
		}
	}
	return path
}

// hold returns a two-configuration path that stays at start, used for
// in-place wrist motions.
func (p *SyntheticPlanner) hold(start Config) []Config {
	return []Config{start.Clone(), start.Clone()}
}

func (p *SyntheticPlanner) PlanToPose(_ context.Context, start Config, target geom.Pose, obstacles *grasp.ObstacleModel) (PlanResult, error) {
	if len(start) != 3 || !target.T.IsFinite() {
		return PlanResult{}, &ConfigurationError{Reason: "synthetic planner expects 3-dof Cartesian configurations"}
	}
	if !p.feasible(target.T, obstacles) {
		return PlanResult{}, nil
	}
	return PlanResult{Path: p.line(start, target.T), FinalPose: target, OK: true}, nil
}

func (p *SyntheticPlanner) PlanLift(_ context.Context, start Config, from geom.Pose, height float64, obstacles *grasp.ObstacleModel) (PlanResult, error) {
	if len(start) != 3 {
		return PlanResult{}, &ConfigurationError{Reason: "synthetic planner expects 3-dof Cartesian configurations"}
	}
	end := geom.Vec3{X: start[0], Y: start[1], Z: start[2] + height}
	if p.Reach > 0 && end.Dist(p.Base) > p.Reach {
		return PlanResult{}, nil
	}
	final := from
	final.T = end
	return PlanResult{Path: p.line(start, end), FinalPose: final, OK: true}, nil
}

func (p *SyntheticPlanner) PlanPlace(ctx context.Context, start Config, target geom.Pose, obstacles *grasp.ObstacleModel) (PlanResult, error) {
	return p.PlanToPose(ctx, start, target, obstacles)
}

func (p *SyntheticPlanner) PlanPour(_ context.Context, start Config, held geom.Pose, tilt float64, _ *grasp.ObstacleModel) (PlanResult, error) {
	final := geom.Pose{R: held.R.Mul(geom.RotX(tilt)), T: held.T}
	return PlanResult{Path: p.hold(start), FinalPose: final, OK: true}, nil
}

func (p *SyntheticPlanner) PlanTwist(_ context.Context, start Config, held geom.Pose, angle float64, _ *grasp.ObstacleModel) (PlanResult, error) {
	final := geom.Pose{R: held.R.Mul(geom.RotZ(angle)), T: held.T}
	return PlanResult{Path: p.hold(start), FinalPose: final, OK: true}, nil
}

// Visualize records the configuration and logs large jumps, which usually
// indicate a playback sampling bug.
func (p *SyntheticPlanner) Visualize(config Config) {
	if p.lastVisualized != nil && len(config) == len(p.lastVisualized) {
		if d := floats.Distance(p.lastVisualized, config, 2); d > 0.5 {
			monitoring.Logf("synthetic planner: visualization jumped %.3f between samples", d)
		}
	}
	p.lastVisualized = config.Clone()
}
