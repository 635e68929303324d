package grasp

import (
	"fmt"
	"math"

	"github.com/fieldworks/graspplan/internal/geom"
)

// HemisphereParams describes the spherical viewpoint grid used to image the
// scene from many directions. Theta sweeps azimuth around the vertical,
// phi sweeps elevation from the horizon up. Defaults mirror the capture rig:
// radius 2 m, 15x15 grid, theta in [-90, 90] degrees, phi in [0, 70].
type HemisphereParams struct {
	Radius     float64
	ThetaCount int
	PhiCount   int
	ThetaMin   float64 // radians
	ThetaMax   float64
	PhiMin     float64
	PhiMax     float64
	Center     geom.Vec3
	LookAt     geom.Vec3
}

// DefaultHemisphereParams returns the standard capture grid centred on the
// given table centre.
func DefaultHemisphereParams(center geom.Vec3) HemisphereParams {
	return HemisphereParams{
		Radius:     2.0,
		ThetaCount: 15,
		PhiCount:   15,
		ThetaMin:   -math.Pi / 2,
		ThetaMax:   math.Pi / 2,
		PhiMin:     0,
		PhiMax:     70 * math.Pi / 180,
		Center:     center,
		LookAt:     center,
	}
}

// GenerateHemisphere produces ThetaCount*PhiCount camera poses on the
// spherical grid, each oriented to look at params.LookAt. The function is
// pure and deterministic: identical parameters yield identical poses in
// identical order (phi-major, theta-minor).
func GenerateHemisphere(params HemisphereParams) ([]CameraPose, error) {
	if params.Radius <= 0 {
		return nil, fmt.Errorf("hemisphere radius must be positive, got %g", params.Radius)
	}
	if params.ThetaCount <= 0 || params.PhiCount <= 0 {
		return nil, fmt.Errorf("hemisphere grid counts must be positive, got %dx%d", params.ThetaCount, params.PhiCount)
	}

	thetas := linspace(params.ThetaMin, params.ThetaMax, params.ThetaCount)
	phis := linspace(params.PhiMin, params.PhiMax, params.PhiCount)

	poses := make([]CameraPose, 0, params.ThetaCount*params.PhiCount)
	up := geom.Vec3{Z: 1}
	for _, phi := range phis {
		for _, theta := range thetas {
			eye := geom.Vec3{
				X: params.Center.X + params.Radius*math.Cos(phi)*math.Sin(theta),
				Y: params.Center.Y - params.Radius*math.Cos(phi)*math.Cos(theta),
				Z: params.Center.Z + params.Radius*math.Sin(phi),
			}
			poses = append(poses, CameraPose{
				Pose:  geom.LookAt(eye, params.LookAt, up),
				Index: len(poses),
			})
		}
	}
	return poses, nil
}

// linspace returns n evenly spaced samples over [min, max] inclusive.
// n == 1 yields the midpoint.
func linspace(min, max float64, n int) []float64 {
	if n == 1 {
		return []float64{(min + max) / 2}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out
}
