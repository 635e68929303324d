package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// OrthonormalTol is the tolerance used when validating rotation matrices.
// R^T R must match the identity within this bound per element.
const OrthonormalTol = 1e-6

// Rot3 is a 3x3 rotation matrix in row-major order.
type Rot3 [9]float64

// Identity is the identity rotation.
var Identity = Rot3{
	1, 0, 0,
	0, 1, 0,
	0, 0, 1,
}

// RotX returns the rotation of angle radians about the X axis.
func RotX(angle float64) Rot3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Rot3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotY returns the rotation of angle radians about the Y axis.
func RotY(angle float64) Rot3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Rot3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotZ returns the rotation of angle radians about the Z axis.
func RotZ(angle float64) Rot3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Rot3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// Mul returns the composition r * s (apply s first, then r).
func (r Rot3) Mul(s Rot3) Rot3 {
	var out Rot3
	a := mat.NewDense(3, 3, r[:])
	b := mat.NewDense(3, 3, s[:])
	c := mat.NewDense(3, 3, out[:])
	c.Mul(a, b)
	return out
}

// Transpose returns the transpose of r, which for a rotation matrix is its
// inverse.
func (r Rot3) Transpose() Rot3 {
	return Rot3{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Apply rotates v by r.
func (r Rot3) Apply(v Vec3) Vec3 {
	return Vec3{
		r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// Col returns column i of r as a vector. Column 0 is the rotated X axis,
// column 1 the rotated Y axis, column 2 the rotated Z axis.
func (r Rot3) Col(i int) Vec3 {
	return Vec3{r[i], r[3+i], r[6+i]}
}

// IsOrthonormal reports whether R^T R is the identity within OrthonormalTol
// and the determinant is +1 (proper rotation, not a reflection).
func (r Rot3) IsOrthonormal() bool {
	a := mat.NewDense(3, 3, r[:])
	var rtr mat.Dense
	rtr.Mul(a.T(), a)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > OrthonormalTol {
				return false
			}
		}
	}
	return mat.Det(a) > 0
}

// AngleTo returns the geodesic angle in radians between rotations r and s,
// derived from the trace of r^T s. The result lies in [0, pi].
func (r Rot3) AngleTo(s Rot3) float64 {
	rel := r.Transpose().Mul(s)
	tr := rel[0] + rel[4] + rel[8]
	// Clamp against accumulated floating point error before acos.
	c := (tr - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// Pose is a rigid transform: rotation followed by translation.
type Pose struct {
	R Rot3 `json:"rotation"`
	T Vec3 `json:"translation"`
}

// NewPose builds a pose and validates the rotation.
func NewPose(r Rot3, t Vec3) (Pose, error) {
	if !r.IsOrthonormal() {
		return Pose{}, fmt.Errorf("rotation matrix is not orthonormal within %g", OrthonormalTol)
	}
	if !t.IsFinite() {
		return Pose{}, fmt.Errorf("translation is not finite: %+v", t)
	}
	return Pose{R: r, T: t}, nil
}

// Compose returns the transform p * q: q expressed in p's frame.
func (p Pose) Compose(q Pose) Pose {
	return Pose{
		R: p.R.Mul(q.R),
		T: p.R.Apply(q.T).Add(p.T),
	}
}

// Inverse returns the transform mapping world coordinates back into p's
// local frame.
func (p Pose) Inverse() Pose {
	rt := p.R.Transpose()
	return Pose{
		R: rt,
		T: rt.Apply(p.T).Scale(-1),
	}
}

// Apply transforms point v from p's local frame into the parent frame.
func (p Pose) Apply(v Vec3) Vec3 {
	return p.R.Apply(v).Add(p.T)
}

// ApplyAll transforms a point cloud, returning a new slice.
func (p Pose) ApplyAll(points []Vec3) []Vec3 {
	out := make([]Vec3, len(points))
	for i, pt := range points {
		out[i] = p.Apply(pt)
	}
	return out
}

// Translated returns a copy of p with the translation offset by d in the
// parent frame.
func (p Pose) Translated(d Vec3) Pose {
	return Pose{R: p.R, T: p.T.Add(d)}
}

// ApproachAxis returns the pose's local Z axis expressed in the parent
// frame. For an end-effector pose this is the direction the tool points.
func (p Pose) ApproachAxis() Vec3 {
	return p.R.Col(2)
}

// LookAt returns a pose positioned at eye and oriented so the local Z axis
// points toward target. The up vector breaks the roll ambiguity; when eye-to-
// target is (anti)parallel to up, world X is used instead.
func LookAt(eye, target, up Vec3) Pose {
	z := target.Sub(eye).Normalize()
	x := up.Cross(z)
	if x.Norm() < 1e-9 {
		x = Vec3{X: 1}.Cross(z)
	}
	x = x.Normalize()
	y := z.Cross(x)
	return Pose{
		R: Rot3{
			x.X, y.X, z.X,
			x.Y, y.Y, z.Y,
			x.Z, y.Z, z.Z,
		},
		T: eye,
	}
}
