package grasp

import (
	"context"
	"strings"
	"testing"

	"github.com/fieldworks/graspplan/internal/geom"
)

func TestReplayDetectorServesInOrder(t *testing.T) {
	perView := [][]Candidate{
		{{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 1}}}},
		{{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 2}}}},
		{},
	}
	d := NewReplayDetector(perView)

	first, err := d.Detect(context.Background(), make([][]geom.Vec3, 2))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(first) != 2 || first[0][0].Pose.T.X != 1 || first[1][0].Pose.T.X != 2 {
		t.Errorf("first batch out of order: %+v", first)
	}

	second, err := d.Detect(context.Background(), make([][]geom.Vec3, 1))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(second) != 1 || len(second[0]) != 0 {
		t.Errorf("second batch = %+v, want one empty proposal list", second)
	}
}

func TestReplayDetectorExhaustion(t *testing.T) {
	d := NewReplayDetector([][]Candidate{{}})

	if _, err := d.Detect(context.Background(), make([][]geom.Vec3, 2)); err == nil {
		t.Fatal("expected error past the recorded viewpoints")
	} else if !strings.Contains(err.Error(), "exhausted") {
		t.Errorf("error = %v", err)
	}

	d.Reset()
	if _, err := d.Detect(context.Background(), make([][]geom.Vec3, 1)); err != nil {
		t.Errorf("Detect after Reset: %v", err)
	}
}

func TestReplayDetectorCollisionFilter(t *testing.T) {
	d := NewReplayDetector(nil)
	d.CollisionRadius = 0.05

	candidates := []Candidate{
		{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4}}},
		{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.6}}},
	}
	obstacles := &ObstacleModel{Points: []geom.Vec3{{X: 0.41}}}

	kept, err := d.FilterCollisions(context.Background(), candidates, obstacles)
	if err != nil {
		t.Fatalf("FilterCollisions: %v", err)
	}
	if len(kept) != 1 || kept[0].Pose.T.X != 0.6 {
		t.Errorf("kept = %+v, want only the clear candidate", kept)
	}

	// Zero radius disables the check entirely. FilterCollisions compacts in
	// place, so rebuild the input.
	candidates = []Candidate{
		{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4}}},
		{Pose: geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.6}}},
	}
	d.CollisionRadius = 0
	kept, err = d.FilterCollisions(context.Background(), candidates, obstacles)
	if err != nil {
		t.Fatalf("FilterCollisions: %v", err)
	}
	if len(kept) != 2 {
		t.Errorf("kept %d candidates with radius 0, want 2", len(kept))
	}
}
