// Package graspdb persists planning runs and their per-attempt telemetry
// to sqlite, and exposes the database for live debugging over tailsql.
package graspdb

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/fieldworks/graspplan/internal/monitoring"
	"github.com/fieldworks/graspplan/internal/planner"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database without touching the schema. Use NewDB
// unless migrations are being managed explicitly.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return db, nil
}

// StartRun records the beginning of a planning run and returns its ID.
func (db *DB) StartRun(scene, primitive string, candidateCount int) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO planning_runs (run_id, scene, primitive, candidate_count)
		 VALUES (?, ?, ?, ?)`,
		runID, scene, primitive, candidateCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert planning run: %w", err)
	}
	return runID, nil
}

// FinishRun closes a planning run with its outcome. selectedCandidate is -1
// and pathLength 0 when no trajectory was found.
func (db *DB) FinishRun(runID, outcome string, selectedCandidate int, pathLength float64) error {
	_, err := db.Exec(
		`UPDATE planning_runs
		 SET outcome = ?, selected_candidate = ?, path_length = ?, finished_at = CURRENT_TIMESTAMP
		 WHERE run_id = ?`,
		outcome, selectedCandidate, pathLength, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish planning run: %w", err)
	}
	return nil
}

// RecordAttempt stores one planning attempt for a run.
func (db *DB) RecordAttempt(runID string, a planner.Attempt) error {
	_, err := db.Exec(
		`INSERT INTO planning_attempts (
			run_id, candidate_index, rotation_trial, stage, outcome,
			target_x, target_y, target_z, path_length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, a.CandidateIndex, a.RotationTrial, string(a.Stage), string(a.Outcome),
		a.TargetPose.T.X, a.TargetPose.T.Y, a.TargetPose.T.Z, a.PathLength,
	)
	if err != nil {
		return fmt.Errorf("failed to insert planning attempt: %w", err)
	}
	return nil
}

// PlanningRun is one stored synthesis run.
type PlanningRun struct {
	RunID             string   `json:"run_id"`
	Scene             string   `json:"scene"`
	Primitive         string   `json:"primitive"`
	CandidateCount    int      `json:"candidate_count"`
	Outcome           *string  `json:"outcome,omitempty"`
	SelectedCandidate *int     `json:"selected_candidate,omitempty"`
	PathLength        *float64 `json:"path_length,omitempty"`
	StartedAt         string   `json:"started_at"`
	FinishedAt        *string  `json:"finished_at,omitempty"`
}

// RecentRuns returns the most recent planning runs, newest first.
func (db *DB) RecentRuns(limit int) ([]PlanningRun, error) {
	rows, err := db.Query(
		`SELECT run_id, scene, primitive, candidate_count, outcome,
		        selected_candidate, path_length, started_at, finished_at
		 FROM planning_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PlanningRun
	for rows.Next() {
		var r PlanningRun
		if err := rows.Scan(&r.RunID, &r.Scene, &r.Primitive, &r.CandidateCount,
			&r.Outcome, &r.SelectedCandidate, &r.PathLength, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PlanningAttempt is one stored attempt row.
type PlanningAttempt struct {
	AttemptID      int64   `json:"attempt_id"`
	RunID          string  `json:"run_id"`
	CandidateIndex int     `json:"candidate_index"`
	RotationTrial  int     `json:"rotation_trial"`
	Stage          string  `json:"stage"`
	Outcome        string  `json:"outcome"`
	TargetX        float64 `json:"target_x"`
	TargetY        float64 `json:"target_y"`
	TargetZ        float64 `json:"target_z"`
	PathLength     float64 `json:"path_length"`
	Timestamp      string  `json:"timestamp"`
}

// AttemptsForRun returns the attempts of a run in insertion order.
func (db *DB) AttemptsForRun(runID string) ([]PlanningAttempt, error) {
	rows, err := db.Query(
		`SELECT attempt_id, run_id, candidate_index, rotation_trial, stage, outcome,
		        target_x, target_y, target_z, path_length, timestamp
		 FROM planning_attempts WHERE run_id = ? ORDER BY attempt_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []PlanningAttempt
	for rows.Next() {
		var a PlanningAttempt
		if err := rows.Scan(&a.AttemptID, &a.RunID, &a.CandidateIndex, &a.RotationTrial,
			&a.Stage, &a.Outcome, &a.TargetX, &a.TargetY, &a.TargetZ, &a.PathLength, &a.Timestamp); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// RunRecorder adapts the database into a planner.AttemptSink bound to one
// run. Insert failures are logged, not propagated; telemetry must never
// abort a synthesis.
type RunRecorder struct {
	db    *DB
	runID string
}

// NewRunRecorder creates a sink writing attempts under runID.
func NewRunRecorder(db *DB, runID string) *RunRecorder {
	return &RunRecorder{db: db, runID: runID}
}

// RecordAttempt implements planner.AttemptSink.
func (r *RunRecorder) RecordAttempt(a planner.Attempt) {
	if err := r.db.RecordAttempt(r.runID, a); err != nil {
		monitoring.Logf("graspdb: failed to record attempt for run %s: %v", r.runID, err)
	}
}

var _ planner.AttemptSink = (*RunRecorder)(nil)

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://grasp.db", db.DB, &tailsql.DBOptions{
		Label: "Grasp DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
