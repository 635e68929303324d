package planner

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/monitoring"
)

// SynthesizerConfig holds the search parameters of the retry state
// machine.
type SynthesizerConfig struct {
	// RotationTrials is how many evenly spaced end-effector rotations about
	// the approach axis are tried per candidate. Trial 0 is the unrotated
	// pose; when it succeeds no further rotations are tried.
	RotationTrials int

	// LiftHeight is the vertical clearance planned after a successful
	// approach, metres.
	LiftHeight float64

	// ToolClearance is subtracted from the candidate depth when placing
	// the tool frame along the approach axis.
	ToolClearance float64

	// RotationPivot shifts the rotation-trial axis along the tool Z so the
	// fingers, not the wrist, stay centred on the grasp.
	RotationPivot float64

	// PathLengthTol is the tolerance within which two path lengths count
	// as equal for the tie-break.
	PathLengthTol float64
}

// DefaultSynthesizerConfig returns the tuned defaults.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		RotationTrials: 4,
		LiftHeight:     0.2,
		ToolClearance:  0.015,
		RotationPivot:  0.02,
		PathLengthTol:  1e-9,
	}
}

// Request is one trajectory-synthesis job over a ranked candidate set.
type Request struct {
	// Candidates ranked best fused score first.
	Candidates *grasp.CandidateSet

	Primitive Primitive

	// Obstacles is the read-only collision geometry for this pass.
	Obstacles *grasp.ObstacleModel

	// Field supplies the relevancy points used to re-centre targets, plus
	// the pick/place auxiliary points for transfer primitives.
	Field *grasp.RelevancyField

	// Start is the manipulator configuration planning begins from.
	Start Config
}

// Result is a successful synthesis: the composed trajectory plus
// bookkeeping about which candidate produced it.
type Result struct {
	Trajectory     *Trajectory
	CandidateIndex int
	FinalPose      geom.Pose
	GraspPoint     geom.Vec3
}

// Synthesizer runs the candidate x rotation retry search against the
// motion-planner collaborator and composes the primitive's staged
// trajectory from the best feasible approach.
type Synthesizer struct {
	planner MotionPlanner
	config  SynthesizerConfig
	sink    AttemptSink
	busy    atomic.Bool
}

// NewSynthesizer creates a synthesizer. sink may be nil.
func NewSynthesizer(mp MotionPlanner, config SynthesizerConfig, sink AttemptSink) *Synthesizer {
	return &Synthesizer{planner: mp, config: config, sink: sink}
}

// Busy reports whether a synthesis is currently in flight.
func (s *Synthesizer) Busy() bool { return s.busy.Load() }

// recorded is one successful approach(+lift) pair for a candidate.
type recorded struct {
	approach PlanResult
	lift     *PlanResult
	target   geom.Pose
	trial    int
}

// Synthesize runs the full state machine. It returns ErrBusy when another
// request is in flight, a *ConfigurationError for invalid requests, and
// ErrNoTrajectory when the bounded search exhausts every combination; the
// caller should then reset the arm to its rest configuration.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	spec, err := specFor(req.Primitive)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if err := validateRequest(req, spec); err != nil {
		return nil, err
	}

	// CANDIDATE_SELECT: candidates in rank order; the first that yields at
	// least one recorded success ends the search.
	for ci, cand := range req.Candidates.Candidates {
		successes, err := s.tryCandidate(ctx, req, spec, ci, cand)
		if err != nil {
			return nil, err
		}
		if len(successes) == 0 {
			continue
		}

		best := successes[0]
		for _, r := range successes[1:] {
			if s.betterResult(r, best) {
				best = r
			}
		}
		monitoring.Logf("synthesizer: candidate %d trial %d selected (path length %.4f)",
			ci, best.trial, PathLength(best.approach.Path))
		return s.composeStages(ctx, req, spec, ci, best)
	}
	return nil, ErrNoTrajectory
}

// tryCandidate runs the ROTATION_TRIAL / POSE_ADJUST / PLAN loop for one
// candidate and returns its recorded successes.
func (s *Synthesizer) tryCandidate(ctx context.Context, req Request, spec primitiveSpec, ci int, cand grasp.Candidate) ([]recorded, error) {
	trials := s.config.RotationTrials
	if trials < 1 {
		trials = 1
	}

	var successes []recorded
	for trial := 0; trial < trials; trial++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		angle := float64(trial) * 2 * math.Pi / float64(trials)
		target := s.composeTarget(cand, spec, angle)
		target = s.recenter(target, cand, req.Field)

		// An approach axis pointing upward cannot be reached from above;
		// skip without spending a planner call.
		if target.ApproachAxis().Z > 0 {
			s.record(Attempt{
				CandidateIndex: ci, RotationTrial: trial, Stage: StageApproach,
				Outcome: OutcomeInfeasiblePose, TargetPose: target, At: time.Now(),
			})
			continue
		}

		approach, err := s.planner.PlanToPose(ctx, req.Start, target, req.Obstacles)
		if err != nil {
			return nil, fmt.Errorf("plan approach (candidate %d, trial %d): %w", ci, trial, err)
		}
		if !approach.OK {
			s.record(Attempt{
				CandidateIndex: ci, RotationTrial: trial, Stage: StageApproach,
				Outcome: OutcomePlanningFailure, TargetPose: target, At: time.Now(),
			})
			continue
		}

		var lift *PlanResult
		if spec.hasLift() {
			end := lastConfig(approach.Path)
			res, err := s.planner.PlanLift(ctx, end, approach.FinalPose, s.config.LiftHeight, req.Obstacles)
			if err != nil {
				return nil, fmt.Errorf("plan lift (candidate %d, trial %d): %w", ci, trial, err)
			}
			if !res.OK {
				s.record(Attempt{
					CandidateIndex: ci, RotationTrial: trial, Stage: StageLift,
					Outcome: OutcomePlanningFailure, TargetPose: target, At: time.Now(),
				})
				continue
			}
			lift = &res
		}

		fin := approach.FinalPose
		s.record(Attempt{
			CandidateIndex: ci, RotationTrial: trial, Stage: StageApproach,
			Outcome: OutcomeSuccess, TargetPose: target, FinalPose: &fin,
			PathLength: PathLength(approach.Path), At: time.Now(),
		})
		successes = append(successes, recorded{approach: approach, lift: lift, target: target, trial: trial})

		// The unrotated solution is preferred outright.
		if trial == 0 {
			break
		}
	}
	return successes, nil
}

// composeTarget builds the end-effector target for one rotation trial:
// candidate pose, tool offset along the approach axis, the rotation trial
// conjugated about the pivot, then the primitive's fixed world offset.
func (s *Synthesizer) composeTarget(cand grasp.Candidate, spec primitiveSpec, angle float64) geom.Pose {
	base := cand.Pose
	if spec.FixedRotation != nil {
		base.R = *spec.FixedRotation
	}

	tool := geom.Pose{
		R: geom.RotY(math.Pi / 2).Mul(geom.RotZ(math.Pi / 2)),
		T: geom.Vec3{X: cand.Depth - s.config.ToolClearance},
	}
	if spec.FixedRotation != nil {
		// Fixed-grip primitives keep the tool translation but not its
		// reorientation.
		tool.R = geom.Identity
	}
	target := base.Compose(tool)

	if angle != 0 {
		pivot := geom.Pose{R: geom.Identity, T: geom.Vec3{Z: s.config.RotationPivot}}
		unpivot := geom.Pose{R: geom.Identity, T: geom.Vec3{Z: -s.config.RotationPivot}}
		spin := geom.Pose{R: geom.RotX(angle)}
		target = target.Compose(pivot).Compose(spin).Compose(unpivot)
	}
	return target.Translated(spec.PreOffset)
}

// recenter shifts the target horizontally onto the centroid of relevancy
// points inside the candidate's bounding box, aligning the grasp with the
// semantically relevant sub-region. Height is preserved; with no relevant
// points the target is unchanged.
func (s *Synthesizer) recenter(target geom.Pose, cand grasp.Candidate, field *grasp.RelevancyField) geom.Pose {
	if field == nil || len(field.Points) == 0 {
		return target
	}
	box := cand.BoundingBox()
	box.Pose = geom.Pose{R: target.R, T: target.T}
	idx := box.PointsInside(field.Points)
	if len(idx) == 0 {
		return target
	}
	pts := make([]geom.Vec3, len(idx))
	for i, j := range idx {
		pts[i] = field.Points[j]
	}
	c := geom.Centroid(pts)
	target.T.X = c.X
	target.T.Y = c.Y
	return target
}

// betterResult implements the deterministic tie-break: a beats b when its
// approach path is strictly shorter; equal lengths (within tolerance) fall
// back to strictly better end-effector proximity to the trial's target.
func (s *Synthesizer) betterResult(a, b recorded) bool {
	la := PathLength(a.approach.Path)
	lb := PathLength(b.approach.Path)
	if math.Abs(la-lb) > s.config.PathLengthTol {
		return la < lb
	}
	da := a.approach.FinalPose.T.Dist(a.target.T)
	db := b.approach.FinalPose.T.Dist(b.target.T)
	return da < db
}

// composeStages runs STAGE_EXTEND for the chosen approach and concatenates
// the primitive's segments. A stage failure here is terminal: the search
// has already committed to this candidate, and a partial trajectory is
// never returned.
func (s *Synthesizer) composeStages(ctx context.Context, req Request, spec primitiveSpec, ci int, best recorded) (*Result, error) {
	segments := []Segment{{Stage: StageApproach, Configs: best.approach.Path}}
	cursor := lastConfig(best.approach.Path)
	// held tracks where the end effector actually is as stages accumulate;
	// in-place stages rotate about it, not about the grasp site.
	held := best.approach.FinalPose
	graspPoint := best.approach.FinalPose.T

	if best.lift != nil {
		segments = append(segments, Segment{Stage: StageLift, Configs: best.lift.Path})
		cursor = lastConfig(best.lift.Path)
		held = best.lift.FinalPose
	}

	for _, stage := range spec.Stages {
		switch stage {
		case StageApproach, StageLift:
			// Already planned during the trial loop.
		case StagePlace:
			target := spec.placeTarget(req.Field.PickPoint, graspPoint, *req.Field.PlacePoint, best.approach.FinalPose.R)
			res, err := s.planner.PlanPlace(ctx, cursor, target, req.Obstacles)
			if err != nil {
				return nil, fmt.Errorf("plan place: %w", err)
			}
			if !res.OK {
				return nil, fmt.Errorf("place stage infeasible for candidate %d: %w", ci, ErrNoTrajectory)
			}
			segments = append(segments, Segment{Stage: StagePlace, Configs: res.Path})
			cursor = lastConfig(res.Path)
			held = res.FinalPose
		case StagePour:
			// First pour stage tilts, second returns to level.
			angle := spec.TiltAngle
			if stageCount(segments, StagePour) > 0 {
				angle = spec.ReturnAngle
			}
			res, err := s.planner.PlanPour(ctx, cursor, held, angle, req.Obstacles)
			if err != nil {
				return nil, fmt.Errorf("plan pour: %w", err)
			}
			if !res.OK {
				return nil, fmt.Errorf("pour stage infeasible for candidate %d: %w", ci, ErrNoTrajectory)
			}
			segments = append(segments, Segment{Stage: StagePour, Configs: res.Path})
			cursor = lastConfig(res.Path)
			held = res.FinalPose
		case StageTwist:
			res, err := s.planner.PlanTwist(ctx, cursor, held, spec.TwistAngle, req.Obstacles)
			if err != nil {
				return nil, fmt.Errorf("plan twist: %w", err)
			}
			if !res.OK {
				return nil, fmt.Errorf("twist stage infeasible for candidate %d: %w", ci, ErrNoTrajectory)
			}
			segments = append(segments, Segment{Stage: StageTwist, Configs: res.Path})
			cursor = lastConfig(res.Path)
			held = res.FinalPose
		}
	}

	traj, err := Concatenate(segments)
	if err != nil {
		return nil, fmt.Errorf("compose trajectory: %w", err)
	}
	return &Result{
		Trajectory:     traj,
		CandidateIndex: ci,
		FinalPose:      best.approach.FinalPose,
		GraspPoint:     graspPoint,
	}, nil
}

func validateRequest(req Request, spec primitiveSpec) error {
	if req.Candidates == nil || req.Candidates.Len() == 0 {
		return &ConfigurationError{Reason: "no candidates to plan for"}
	}
	if len(req.Start) == 0 {
		return &ConfigurationError{Reason: "missing start configuration"}
	}
	if spec.RequiresPlacePoint {
		if req.Field == nil {
			return &ConfigurationError{Reason: fmt.Sprintf("primitive %q requires a relevancy field with pick and place points", req.Primitive)}
		}
		if req.Field.PlacePoint == nil {
			return &ConfigurationError{Reason: fmt.Sprintf("primitive %q requires a place point", req.Primitive)}
		}
	}
	return nil
}

func (s *Synthesizer) record(a Attempt) {
	if s.sink != nil {
		s.sink.RecordAttempt(a)
	}
}

func lastConfig(path []Config) Config {
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1].Clone()
}

func stageCount(segments []Segment, stage Stage) int {
	n := 0
	for _, s := range segments {
		if s.Stage == stage {
			n++
		}
	}
	return n
}
