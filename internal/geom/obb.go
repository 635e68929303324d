package geom

import "math"

// OrientedBox is a box centred on a pose with half-extents along the pose's
// local axes. Extent follows the gripper convention used by the detector:
// X=depth (approach direction into the grasp), Y=width (between fingers),
// Z=height.
type OrientedBox struct {
	Pose   Pose
	Extent Vec3 // full lengths along local X, Y, Z
}

// Contains reports whether world-frame point p lies inside the box
// (boundary inclusive).
func (b OrientedBox) Contains(p Vec3) bool {
	local := b.Pose.Inverse().Apply(p)
	return math.Abs(local.X) <= b.Extent.X/2 &&
		math.Abs(local.Y) <= b.Extent.Y/2 &&
		math.Abs(local.Z) <= b.Extent.Z/2
}

// PointsInside returns the indices of points lying inside the box, in input
// order.
func (b OrientedBox) PointsInside(points []Vec3) []int {
	inv := b.Pose.Inverse()
	var idx []int
	for i, p := range points {
		local := inv.Apply(p)
		if math.Abs(local.X) <= b.Extent.X/2 &&
			math.Abs(local.Y) <= b.Extent.Y/2 &&
			math.Abs(local.Z) <= b.Extent.Z/2 {
			idx = append(idx, i)
		}
	}
	return idx
}
