// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"

	"github.com/fieldworks/graspplan/internal/geom"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("value = %g, want %g (±%g)", got, want, delta)
	}
}

// AssertVec3Near checks that each component of got is within delta of want.
func AssertVec3Near(t *testing.T, got, want geom.Vec3, delta float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > delta ||
		math.Abs(got.Y-want.Y) > delta ||
		math.Abs(got.Z-want.Z) > delta {
		t.Errorf("vector = %+v, want %+v (±%g)", got, want, delta)
	}
}

// AssertPoseNear checks that two poses agree: translations within delta and
// rotations within angle radians of each other.
func AssertPoseNear(t *testing.T, got, want geom.Pose, delta, angle float64) {
	t.Helper()
	if got.T.Dist(want.T) > delta {
		t.Errorf("translation = %+v, want %+v (±%g)", got.T, want.T, delta)
	}
	if a := got.R.AngleTo(want.R); a > angle {
		t.Errorf("rotation differs by %g rad, want ≤ %g", a, angle)
	}
}
