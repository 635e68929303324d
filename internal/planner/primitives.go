package planner

import (
	"fmt"

	"github.com/fieldworks/graspplan/internal/geom"
)

// Primitive names a manipulation behaviour with its own staged trajectory
// template.
type Primitive string

const (
	PrimitiveGrasp        Primitive = "grasp"
	PrimitivePickAndPlace Primitive = "pick_and_place"
	PrimitiveTwist        Primitive = "twist"
	PrimitivePour         Primitive = "pour"
)

// primitiveSpec is the declarative per-primitive configuration: stage
// order, fixed pose adjustments and required auxiliary points. Offsets are
// hand-tuned on the physical rig; treat them as calibration constants.
type primitiveSpec struct {
	// Stages in playback order.
	Stages []Stage

	// PreOffset is a world-frame translation applied to the target pose
	// before planning the approach.
	PreOffset geom.Vec3

	// FixedRotation, when set, replaces the candidate's rotation for the
	// approach target (twist and pour grip from a fixed orientation).
	FixedRotation *geom.Rot3

	// RequiresPlacePoint marks primitives that transfer to a second
	// location; their requests must carry a place point.
	RequiresPlacePoint bool

	// PlaceMargin is added to the displaced place target (see placeTarget).
	PlaceMargin geom.Vec3

	// TiltAngle is the wrist angle for the pour stage, ReturnAngle the
	// level angle it returns to. TwistAngle is the in-place twist rotation.
	TiltAngle   float64
	ReturnAngle float64
	TwistAngle  float64
}

// topDownGrip flips the gripper to grasp straight down (twist primitive).
var topDownGrip = geom.Rot3{
	-1, 0, 0,
	0, 1, 0,
	0, 0, -1,
}

// sideGrip holds the gripper horizontally for pouring.
var sideGrip = geom.Rot3{
	1, 0, 0,
	0, 0, 1,
	0, -1, 0,
}

var primitiveSpecs = map[Primitive]primitiveSpec{
	PrimitiveGrasp: {
		Stages:    []Stage{StageApproach, StageLift},
		PreOffset: geom.Vec3{Z: 0.015},
	},
	PrimitivePickAndPlace: {
		Stages:             []Stage{StageApproach, StageLift, StagePlace},
		PreOffset:          geom.Vec3{X: -0.02, Y: 0.03, Z: -0.015},
		RequiresPlacePoint: true,
		PlaceMargin:        geom.Vec3{X: 0.02, Z: 0.05},
	},
	PrimitivePour: {
		Stages:             []Stage{StageApproach, StageLift, StagePlace, StagePour, StagePour},
		PreOffset:          geom.Vec3{Y: -0.03, Z: -0.025},
		FixedRotation:      &sideGrip,
		RequiresPlacePoint: true,
		PlaceMargin:        geom.Vec3{X: -0.05, Y: -0.05, Z: 0.19},
		TiltAngle:          -1.4,
		ReturnAngle:        0.01,
	},
	PrimitiveTwist: {
		Stages:        []Stage{StageApproach, StageTwist},
		FixedRotation: &topDownGrip,
		TwistAngle:    -1,
	},
}

// specFor resolves the primitive table entry.
func specFor(p Primitive) (primitiveSpec, error) {
	spec, ok := primitiveSpecs[p]
	if !ok {
		return primitiveSpec{}, fmt.Errorf("unknown primitive %q", p)
	}
	return spec, nil
}

// hasLift reports whether the primitive's template includes a lift stage.
func (s primitiveSpec) hasLift() bool {
	for _, st := range s.Stages {
		if st == StageLift {
			return true
		}
	}
	return false
}

// placeTarget computes the place pose for transfer primitives: the place
// point displaced by the observed pick-to-grasp offset plus the
// primitive's margin, keeping the grasp orientation.
func (s primitiveSpec) placeTarget(pick, graspPoint, place geom.Vec3, grip geom.Rot3) geom.Pose {
	offset := geom.Vec3{
		X: abs(pick.X - graspPoint.X),
		Y: abs(pick.Y - graspPoint.Y),
		Z: abs(pick.Z - graspPoint.Z),
	}
	return geom.Pose{
		R: grip,
		T: geom.Vec3{
			X: place.X + offset.X + s.PlaceMargin.X,
			Y: place.Y - offset.Y + s.PlaceMargin.Y,
			Z: place.Z + offset.Z + s.PlaceMargin.Z,
		},
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
