package planner

import (
	"context"
	"math"
	"testing"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
)

func TestSyntheticPlanToPose(t *testing.T) {
	p := NewSyntheticPlanner()
	target := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.5, Y: 0.1, Z: 0.2}}

	res, err := p.PlanToPose(context.Background(), Config{0, 0, 0}, target, nil)
	if err != nil {
		t.Fatalf("PlanToPose: %v", err)
	}
	if !res.OK {
		t.Fatal("PlanToPose not OK for a reachable target")
	}
	if len(res.Path) != p.Steps {
		t.Errorf("path length = %d, want %d", len(res.Path), p.Steps)
	}
	first, last := res.Path[0], res.Path[len(res.Path)-1]
	if first[0] != 0 || last[0] != 0.5 || last[2] != 0.2 {
		t.Errorf("path endpoints %v .. %v", first, last)
	}
}

func TestSyntheticRejectsInfeasibleTargets(t *testing.T) {
	p := NewSyntheticPlanner()
	start := Config{0, 0, 0}

	below := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.3, Z: -0.5}}
	if res, _ := p.PlanToPose(context.Background(), start, below, nil); res.OK {
		t.Error("target below the table accepted")
	}

	far := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 5}}
	if res, _ := p.PlanToPose(context.Background(), start, far, nil); res.OK {
		t.Error("target beyond reach accepted")
	}

	target := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4}}
	obstacles := &grasp.ObstacleModel{Points: []geom.Vec3{{X: 0.405}}}
	if res, _ := p.PlanToPose(context.Background(), start, target, obstacles); res.OK {
		t.Error("target inside obstacle clearance accepted")
	}
}

func TestSyntheticPlanLift(t *testing.T) {
	p := NewSyntheticPlanner()
	from := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4, Z: 0.1}}

	res, err := p.PlanLift(context.Background(), Config{0.4, 0, 0.1}, from, 0.2, nil)
	if err != nil {
		t.Fatalf("PlanLift: %v", err)
	}
	if !res.OK {
		t.Fatal("PlanLift not OK")
	}
	last := res.Path[len(res.Path)-1]
	if math.Abs(last[2]-0.3) > 1e-12 {
		t.Errorf("lift end z = %v, want 0.3", last[2])
	}
	if math.Abs(res.FinalPose.T.Z-0.3) > 1e-12 {
		t.Errorf("FinalPose z = %v, want 0.3", res.FinalPose.T.Z)
	}
}

func TestSyntheticPourAndTwistStayInPlace(t *testing.T) {
	p := NewSyntheticPlanner()
	held := geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4, Z: 0.3}}
	start := Config{0.4, 0, 0.3}

	pour, err := p.PlanPour(context.Background(), start, held, -1.4, nil)
	if err != nil || !pour.OK {
		t.Fatalf("PlanPour: ok=%v err=%v", pour.OK, err)
	}
	for _, c := range pour.Path {
		if c[0] != 0.4 || c[2] != 0.3 {
			t.Errorf("pour moved the tool: %v", c)
		}
	}
	if got := geom.Identity.AngleTo(pour.FinalPose.R); math.Abs(got-1.4) > 1e-9 {
		t.Errorf("pour rotation angle = %v, want 1.4", got)
	}

	twist, err := p.PlanTwist(context.Background(), start, held, -1, nil)
	if err != nil || !twist.OK {
		t.Fatalf("PlanTwist: ok=%v err=%v", twist.OK, err)
	}
	if got := geom.Identity.AngleTo(twist.FinalPose.R); math.Abs(got-1) > 1e-9 {
		t.Errorf("twist rotation angle = %v, want 1", got)
	}
}

func TestSynthesizeWithSyntheticPlanner(t *testing.T) {
	p := NewSyntheticPlanner()
	set := candidateSet(testCandidate(geom.Vec3{X: 0.4, Y: 0.0, Z: 0.0}))
	s := NewSynthesizer(p, DefaultSynthesizerConfig(), nil)

	res, err := s.Synthesize(context.Background(), baseRequest(set))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.CandidateIndex != 0 {
		t.Errorf("CandidateIndex = %d, want 0", res.CandidateIndex)
	}
	if res.Trajectory.Len() != 2*p.Steps {
		t.Errorf("trajectory length = %d, want %d", res.Trajectory.Len(), 2*p.Steps)
	}
}
