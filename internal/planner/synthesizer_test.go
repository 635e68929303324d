package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakePlanner scripts PlanToPose outcomes in call order and records every
// collaborator call for assertions. Configurations are Cartesian [x y z].
type fakePlanner struct {
	mu     sync.Mutex
	script []bool   // outcome per PlanToPose call; exhausted means failure
	ends   []Config // optional explicit end config per call, indexed like script

	targets      []geom.Pose
	lifts        []Config
	liftFail     bool
	placeStarts  []Config
	placeTargets []geom.Pose
	placeFail    bool
	pourAngles   []float64
	pourHeld     []geom.Pose
	twistAngles  []float64

	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func (p *fakePlanner) PlanToPose(_ context.Context, start Config, target geom.Pose, _ *grasp.ObstacleModel) (PlanResult, error) {
	if p.started != nil {
		p.startedOnce.Do(func() { close(p.started) })
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.targets)
	p.targets = append(p.targets, target)
	if n >= len(p.script) || !p.script[n] {
		return PlanResult{}, nil
	}
	end := Config{target.T.X, target.T.Y, target.T.Z}
	if n < len(p.ends) && p.ends[n] != nil {
		end = p.ends[n].Clone()
	}
	return PlanResult{Path: []Config{start.Clone(), end}, FinalPose: target, OK: true}, nil
}

func (p *fakePlanner) PlanLift(_ context.Context, start Config, from geom.Pose, height float64, _ *grasp.ObstacleModel) (PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifts = append(p.lifts, start.Clone())
	if p.liftFail {
		return PlanResult{}, nil
	}
	end := start.Clone()
	end[2] += height
	final := from
	final.T.Z += height
	return PlanResult{Path: []Config{start.Clone(), end}, FinalPose: final, OK: true}, nil
}

func (p *fakePlanner) PlanPlace(_ context.Context, start Config, target geom.Pose, _ *grasp.ObstacleModel) (PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placeStarts = append(p.placeStarts, start.Clone())
	p.placeTargets = append(p.placeTargets, target)
	if p.placeFail {
		return PlanResult{}, nil
	}
	end := Config{target.T.X, target.T.Y, target.T.Z}
	return PlanResult{Path: []Config{start.Clone(), end}, FinalPose: target, OK: true}, nil
}

func (p *fakePlanner) PlanPour(_ context.Context, start Config, held geom.Pose, tilt float64, _ *grasp.ObstacleModel) (PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pourAngles = append(p.pourAngles, tilt)
	p.pourHeld = append(p.pourHeld, held)
	return PlanResult{Path: []Config{start.Clone(), start.Clone()}, FinalPose: held, OK: true}, nil
}

func (p *fakePlanner) PlanTwist(_ context.Context, start Config, held geom.Pose, angle float64, _ *grasp.ObstacleModel) (PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twistAngles = append(p.twistAngles, angle)
	return PlanResult{Path: []Config{start.Clone(), start.Clone()}, FinalPose: held, OK: true}, nil
}

func (p *fakePlanner) Visualize(Config) {}

func (p *fakePlanner) poseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.targets)
}

func testCandidate(t geom.Vec3) grasp.Candidate {
	return grasp.Candidate{
		Pose:           geom.Pose{R: geom.Identity, T: t},
		Width:          0.08,
		Height:         0.04,
		Depth:          0.06,
		GeometricScore: 0.9,
		SemanticScore:  0.5,
		FusedScore:     0.8,
	}
}

func candidateSet(cands ...grasp.Candidate) *grasp.CandidateSet {
	set := &grasp.CandidateSet{}
	for _, c := range cands {
		set.Add(c)
	}
	return set
}

func baseRequest(set *grasp.CandidateSet) Request {
	return Request{
		Candidates: set,
		Primitive:  PrimitiveGrasp,
		Start:      Config{0, 0, 0},
	}
}

// With identity candidate rotations the composed targets of rotation
// trials 0..3 have approach-axis Z of 0, -1, 0, +1: trials 0-2 reach the
// planner and trial 3 is rejected as infeasible before planning.

func TestSynthesizeStopsAtFirstFeasibleCandidate(t *testing.T) {
	// Candidate 0 fails trials 0-2, candidate 1 succeeds at trial 0.
	// Candidate 2 must never reach the planner.
	fp := &fakePlanner{script: []bool{false, false, false, true}}
	set := candidateSet(
		testCandidate(geom.Vec3{X: 0.4, Y: 0.1, Z: 0.0}),
		testCandidate(geom.Vec3{X: 0.5, Y: -0.1, Z: 0.0}),
		testCandidate(geom.Vec3{X: 0.6, Y: 0.2, Z: 0.0}),
	)
	log := NewAttemptLog(0)
	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), log)

	res, err := s.Synthesize(context.Background(), baseRequest(set))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.CandidateIndex != 1 {
		t.Errorf("CandidateIndex = %d, want 1", res.CandidateIndex)
	}
	if got := fp.poseCalls(); got != 4 {
		t.Errorf("PlanToPose calls = %d, want 4 (candidate 2 must not be planned)", got)
	}
	if len(fp.lifts) != 1 {
		t.Errorf("PlanLift calls = %d, want 1", len(fp.lifts))
	}
	if len(res.Trajectory.Stages) != 2 || res.Trajectory.Stages[0] != StageApproach || res.Trajectory.Stages[1] != StageLift {
		t.Errorf("Stages = %v, want [approach lift]", res.Trajectory.Stages)
	}
}

func TestSynthesizeTrialZeroShortCircuits(t *testing.T) {
	fp := &fakePlanner{script: []bool{true, true, true, true}}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)

	if _, err := s.Synthesize(context.Background(), baseRequest(set)); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := fp.poseCalls(); got != 1 {
		t.Errorf("PlanToPose calls = %d, want 1 (trial 0 success ends the trials)", got)
	}
}

func TestSynthesizeExhaustionReturnsNoTrajectory(t *testing.T) {
	fp := &fakePlanner{}
	set := candidateSet(
		testCandidate(geom.Vec3{X: 0.4}),
		testCandidate(geom.Vec3{X: 0.5}),
	)
	log := NewAttemptLog(0)
	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), log)

	_, err := s.Synthesize(context.Background(), baseRequest(set))
	if !errors.Is(err, ErrNoTrajectory) {
		t.Fatalf("err = %v, want ErrNoTrajectory", err)
	}
	// Per candidate: 3 planning failures plus 1 infeasible-pose rejection.
	attempts := log.Attempts()
	if len(attempts) != 8 {
		t.Fatalf("attempts = %d, want 8", len(attempts))
	}
	var infeasible, failed int
	for _, a := range attempts {
		switch a.Outcome {
		case OutcomeInfeasiblePose:
			infeasible++
		case OutcomePlanningFailure:
			failed++
		}
	}
	if infeasible != 2 || failed != 6 {
		t.Errorf("infeasible = %d, failed = %d, want 2 and 6", infeasible, failed)
	}
}

func TestSynthesizeRejectsUpwardApproachWithoutPlanning(t *testing.T) {
	// RotY(-pi/2) puts the composed approach axis straight up for the
	// unrotated trial.
	cand := testCandidate(geom.Vec3{X: 0.4})
	cand.Pose.R = geom.RotY(-math.Pi / 2)

	fp := &fakePlanner{}
	log := NewAttemptLog(0)
	cfg := DefaultSynthesizerConfig()
	cfg.RotationTrials = 1
	s := NewSynthesizer(fp, cfg, log)

	_, err := s.Synthesize(context.Background(), baseRequest(candidateSet(cand)))
	if !errors.Is(err, ErrNoTrajectory) {
		t.Fatalf("err = %v, want ErrNoTrajectory", err)
	}
	if got := fp.poseCalls(); got != 0 {
		t.Errorf("PlanToPose calls = %d, want 0", got)
	}
	attempts := log.Attempts()
	if len(attempts) != 1 || attempts[0].Outcome != OutcomeInfeasiblePose {
		t.Errorf("attempts = %+v, want one infeasible_pose", attempts)
	}
}

func TestSynthesizeTieBreakPrefersShorterPath(t *testing.T) {
	// Trial 0 fails; trials 1 and 2 succeed with path lengths 0.9 and 0.4.
	// The shorter path must win.
	fp := &fakePlanner{
		script: []bool{false, true, true},
		ends:   []Config{nil, {0.9, 0, 0}, {0.4, 0, 0}},
	}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)

	res, err := s.Synthesize(context.Background(), baseRequest(set))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	// Approach segment is [start, end]; the chosen end identifies the trial.
	if got := res.Trajectory.Configs[1][0]; got != 0.4 {
		t.Errorf("approach end = %v, want the 0.4-length trial", got)
	}
}

func TestSynthesizeRequiresPlacePointForTransfer(t *testing.T) {
	fp := &fakePlanner{script: []bool{true}}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	req := baseRequest(set)
	req.Primitive = PrimitivePickAndPlace

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	_, err := s.Synthesize(context.Background(), req)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
	if got := fp.poseCalls(); got != 0 {
		t.Errorf("PlanToPose calls = %d, want 0 (validation precedes planning)", got)
	}
}

func TestSynthesizeRejectsEmptySet(t *testing.T) {
	s := NewSynthesizer(&fakePlanner{}, DefaultSynthesizerConfig(), nil)
	_, err := s.Synthesize(context.Background(), baseRequest(candidateSet()))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
}

func TestSynthesizePickAndPlaceStages(t *testing.T) {
	fp := &fakePlanner{script: []bool{true}}
	place := geom.Vec3{X: 0.6, Y: 0.2, Z: 0.0}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	req := baseRequest(set)
	req.Primitive = PrimitivePickAndPlace
	req.Field = &grasp.RelevancyField{
		PickPoint:  geom.Vec3{X: 0.4},
		PlacePoint: &place,
	}

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	res, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := []Stage{StageApproach, StageLift, StagePlace}
	if len(res.Trajectory.Stages) != len(want) {
		t.Fatalf("Stages = %v, want %v", res.Trajectory.Stages, want)
	}
	for i, st := range want {
		if res.Trajectory.Stages[i] != st {
			t.Errorf("Stages[%d] = %v, want %v", i, res.Trajectory.Stages[i], st)
		}
	}
	if len(fp.placeStarts) != 1 {
		t.Fatalf("PlanPlace calls = %d, want 1", len(fp.placeStarts))
	}
	// The place stage must be seeded from the lift's final configuration.
	liftEnd := fp.lifts[0].Clone()
	liftEnd[2] += DefaultSynthesizerConfig().LiftHeight
	for i := range liftEnd {
		if math.Abs(fp.placeStarts[0][i]-liftEnd[i]) > 1e-12 {
			t.Fatalf("place seeded from %v, want %v", fp.placeStarts[0], liftEnd)
		}
	}
}

func TestSynthesizeStageExtensionFailureIsTerminal(t *testing.T) {
	// Candidate 0 approaches and lifts fine but the place stage fails. The
	// search has committed to candidate 0: no retry against candidate 1.
	fp := &fakePlanner{script: []bool{true, true}, placeFail: true}
	place := geom.Vec3{X: 0.6}
	set := candidateSet(
		testCandidate(geom.Vec3{X: 0.4}),
		testCandidate(geom.Vec3{X: 0.5}),
	)
	req := baseRequest(set)
	req.Primitive = PrimitivePickAndPlace
	req.Field = &grasp.RelevancyField{PickPoint: geom.Vec3{X: 0.4}, PlacePoint: &place}

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	_, err := s.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrNoTrajectory) {
		t.Fatalf("err = %v, want ErrNoTrajectory", err)
	}
	if got := fp.poseCalls(); got != 1 {
		t.Errorf("PlanToPose calls = %d, want 1 (no retry after commit)", got)
	}
}

func TestSynthesizePourRunsTiltAndReturn(t *testing.T) {
	fp := &fakePlanner{script: []bool{true}}
	place := geom.Vec3{X: 0.55, Y: 0.1}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	req := baseRequest(set)
	req.Primitive = PrimitivePour
	req.Field = &grasp.RelevancyField{PickPoint: geom.Vec3{X: 0.4}, PlacePoint: &place}

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	res, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(fp.pourAngles) != 2 {
		t.Fatalf("PlanPour calls = %d, want 2", len(fp.pourAngles))
	}
	if fp.pourAngles[0] != -1.4 || fp.pourAngles[1] != 0.01 {
		t.Errorf("pour angles = %v, want [-1.4 0.01]", fp.pourAngles)
	}
	want := []Stage{StageApproach, StageLift, StagePlace, StagePour, StagePour}
	if len(res.Trajectory.Stages) != len(want) {
		t.Errorf("Stages = %v, want %v", res.Trajectory.Stages, want)
	}
	// Both pour stages must tilt about the placed pose, where the arm
	// actually is after the place stage, not about the grasp site.
	placed := fp.placeTargets[0]
	for i, h := range fp.pourHeld {
		if h.T.Dist(placed.T) > 1e-12 {
			t.Errorf("pour %d held at %+v, want place target %+v", i, h.T, placed.T)
		}
	}
}

func TestSynthesizeTwistHasNoLift(t *testing.T) {
	fp := &fakePlanner{script: []bool{true}}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	req := baseRequest(set)
	req.Primitive = PrimitiveTwist

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	res, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(fp.lifts) != 0 {
		t.Errorf("PlanLift calls = %d, want 0", len(fp.lifts))
	}
	if len(fp.twistAngles) != 1 || fp.twistAngles[0] != -1 {
		t.Errorf("twist angles = %v, want [-1]", fp.twistAngles)
	}
	want := []Stage{StageApproach, StageTwist}
	if len(res.Trajectory.Stages) != 2 || res.Trajectory.Stages[0] != want[0] || res.Trajectory.Stages[1] != want[1] {
		t.Errorf("Stages = %v, want %v", res.Trajectory.Stages, want)
	}
}

func TestSynthesizeRecentersOnRelevantPoints(t *testing.T) {
	fp := &fakePlanner{script: []bool{true}}
	set := candidateSet(testCandidate(geom.Vec3{}))
	req := baseRequest(set)
	// Two points just off the composed target centre; their centroid pulls
	// the target horizontally but never vertically.
	req.Field = &grasp.RelevancyField{
		Points: []geom.Vec3{
			{X: 0.05, Y: 0.01, Z: 0.015},
			{X: 0.04, Y: 0.01, Z: 0.015},
		},
		Scores: []float64{1, 1},
	}

	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)
	if _, err := s.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	got := fp.targets[0].T
	if math.Abs(got.X-0.045) > 1e-12 || math.Abs(got.Y-0.01) > 1e-12 {
		t.Errorf("recentred target = %+v, want X=0.045 Y=0.01", got)
	}
	if math.Abs(got.Z-0.015) > 1e-12 {
		t.Errorf("target Z = %v, want 0.015 (height preserved)", got.Z)
	}
}

func TestSynthesizeBusy(t *testing.T) {
	fp := &fakePlanner{
		script:  []bool{true},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4}))
	s := NewSynthesizer(fp, DefaultSynthesizerConfig(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Synthesize(context.Background(), baseRequest(set))
		done <- err
	}()
	<-fp.started

	if _, err := s.Synthesize(context.Background(), baseRequest(set)); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Synthesize err = %v, want ErrBusy", err)
	}
	close(fp.release)
	if err := <-done; err != nil {
		t.Errorf("first Synthesize err = %v", err)
	}
	if s.Busy() {
		t.Error("Busy() = true after completion")
	}
}
