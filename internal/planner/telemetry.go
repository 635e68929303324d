package planner

import (
	"sync"
	"time"

	"github.com/fieldworks/graspplan/internal/geom"
)

// AttemptOutcome classifies one planning attempt.
type AttemptOutcome string

const (
	// OutcomeSuccess: approach (and lift, when the primitive has one)
	// planned successfully.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeInfeasiblePose: the rotated target's approach axis pointed
	// upward; rejected without calling the planner.
	OutcomeInfeasiblePose AttemptOutcome = "infeasible_pose"
	// OutcomePlanningFailure: the planner reported no feasible path.
	OutcomePlanningFailure AttemptOutcome = "planning_failure"
)

// Attempt is the telemetry emitted at each planning-attempt boundary:
// which candidate and rotation trial ran, what happened, and the resulting
// path metrics when it succeeded.
type Attempt struct {
	CandidateIndex int
	RotationTrial  int
	Stage          Stage
	Outcome        AttemptOutcome
	TargetPose     geom.Pose
	FinalPose      *geom.Pose
	PathLength     float64
	At             time.Time
}

// AttemptSink receives attempt telemetry. Implementations must be cheap;
// the synthesizer calls them inline.
type AttemptSink interface {
	RecordAttempt(Attempt)
}

// AttemptLog is a bounded in-memory attempt collector, useful for tests
// and for serving recent attempts from the monitor.
type AttemptLog struct {
	mu       sync.Mutex
	max      int
	attempts []Attempt
}

// NewAttemptLog creates a collector retaining at most max attempts
// (oldest dropped first). max <= 0 means unbounded.
func NewAttemptLog(max int) *AttemptLog {
	return &AttemptLog{max: max}
}

// RecordAttempt implements AttemptSink.
func (l *AttemptLog) RecordAttempt(a Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
	if l.max > 0 && len(l.attempts) > l.max {
		l.attempts = l.attempts[len(l.attempts)-l.max:]
	}
}

// Attempts returns a copy of the recorded attempts in order.
func (l *AttemptLog) Attempts() []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Attempt(nil), l.attempts...)
}

// Reset clears the log.
func (l *AttemptLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = nil
}

var _ AttemptSink = (*AttemptLog)(nil)
