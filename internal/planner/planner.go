// Package planner synthesizes multi-stage, collision-aware manipulator
// trajectories from ranked grasp candidates. The motion planner itself is a
// black-box collaborator; this package owns the retry search across
// candidates and end-effector rotations, the per-primitive stage
// composition, and the final trajectory container.
package planner

import (
	"context"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
)

// Config is a joint-space configuration of the manipulator.
type Config []float64

// Clone returns a copy of the configuration.
func (c Config) Clone() Config {
	return append(Config(nil), c...)
}

// PlanResult is the outcome of one motion-planner invocation. OK false
// means the planner ran but found no feasible path; transport or contract
// failures surface as errors instead.
type PlanResult struct {
	Path      []Config
	FinalPose geom.Pose
	OK        bool
}

// MotionPlanner is the inverse-kinematics/motion-planning collaborator.
// All calls are synchronous and uncancelled once started; ctx is checked
// between calls, not during them.
type MotionPlanner interface {
	// PlanToPose plans from start to an end-effector target pose avoiding
	// the obstacle model.
	PlanToPose(ctx context.Context, start Config, target geom.Pose, obstacles *grasp.ObstacleModel) (PlanResult, error)

	// PlanLift plans a straight vertical lift of the given height from the
	// pose reached at start.
	PlanLift(ctx context.Context, start Config, from geom.Pose, height float64, obstacles *grasp.ObstacleModel) (PlanResult, error)

	// PlanPlace plans a transfer from start to the place target pose.
	PlanPlace(ctx context.Context, start Config, target geom.Pose, obstacles *grasp.ObstacleModel) (PlanResult, error)

	// PlanPour plans an in-place wrist tilt to the given angle about the
	// held pose.
	PlanPour(ctx context.Context, start Config, held geom.Pose, tilt float64, obstacles *grasp.ObstacleModel) (PlanResult, error)

	// PlanTwist plans an in-place rotation of the end effector by the given
	// angle.
	PlanTwist(ctx context.Context, start Config, held geom.Pose, angle float64, obstacles *grasp.ObstacleModel) (PlanResult, error)

	// Visualize drives an attached visualization to the configuration.
	// Implementations may no-op.
	Visualize(config Config)
}
