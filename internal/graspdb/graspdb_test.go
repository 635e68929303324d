package graspdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/planner"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "grasp.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApplyOnOpen(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}
}

func TestMigrateDownRollsBack(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("version after down = %d, want 0", version)
	}
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp after down: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)

	runID, err := db.StartRun("kitchen_scene_03", "pick_and_place", 12)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID == "" {
		t.Fatal("StartRun returned empty run ID")
	}

	attempt := planner.Attempt{
		CandidateIndex: 2,
		RotationTrial:  1,
		Stage:          planner.StageApproach,
		Outcome:        planner.OutcomeSuccess,
		TargetPose:     geom.Pose{R: geom.Identity, T: geom.Vec3{X: 0.4, Y: 0.1, Z: 0.02}},
		PathLength:     0.37,
		At:             time.Now(),
	}
	if err := db.RecordAttempt(runID, attempt); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := db.FinishRun(runID, "success", 2, 0.37); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("RecentRuns returned %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.RunID != runID || r.Scene != "kitchen_scene_03" || r.Primitive != "pick_and_place" {
		t.Errorf("run = %+v", r)
	}
	if r.Outcome == nil || *r.Outcome != "success" {
		t.Errorf("outcome = %v, want success", r.Outcome)
	}
	if r.SelectedCandidate == nil || *r.SelectedCandidate != 2 {
		t.Errorf("selected candidate = %v, want 2", r.SelectedCandidate)
	}
	if r.FinishedAt == nil {
		t.Error("finished_at not set")
	}

	attempts, err := db.AttemptsForRun(runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("AttemptsForRun returned %d rows, want 1", len(attempts))
	}
	a := attempts[0]
	if a.CandidateIndex != 2 || a.RotationTrial != 1 || a.Stage != "approach" || a.Outcome != "success" {
		t.Errorf("attempt = %+v", a)
	}
	if a.TargetX != 0.4 || a.TargetY != 0.1 || a.TargetZ != 0.02 {
		t.Errorf("attempt target = (%v, %v, %v)", a.TargetX, a.TargetY, a.TargetZ)
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	db := newTestDB(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := db.StartRun("scene", "grasp", 1)
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate run ID %s", id)
		}
		seen[id] = true
	}
}

func TestRunRecorderSink(t *testing.T) {
	db := newTestDB(t)

	runID, err := db.StartRun("scene", "grasp", 3)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	var sink planner.AttemptSink = NewRunRecorder(db, runID)
	for trial := 0; trial < 3; trial++ {
		sink.RecordAttempt(planner.Attempt{
			CandidateIndex: 0,
			RotationTrial:  trial,
			Stage:          planner.StageApproach,
			Outcome:        planner.OutcomePlanningFailure,
			At:             time.Now(),
		})
	}

	attempts, err := db.AttemptsForRun(runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.RotationTrial != i {
			t.Errorf("attempt %d trial = %d, want %d (insertion order)", i, a.RotationTrial, i)
		}
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 4; i++ {
		if _, err := db.StartRun("scene", "grasp", i); err != nil {
			t.Fatalf("StartRun: %v", err)
		}
	}
	runs, err := db.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("RecentRuns(2) returned %d runs", len(runs))
	}
}
