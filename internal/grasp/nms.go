package grasp

import "sort"

// NMSParams are the near-duplicate thresholds: two candidates are
// duplicates when BOTH their translation distance is below TranslationThresh
// and their rotation angle is below RotationThresh. The survivor is the
// higher geometric score.
type NMSParams struct {
	TranslationThresh float64 // metres
	RotationThresh    float64 // radians
}

// SuppressDuplicates runs non-maximum suppression over candidates and
// returns the surviving subset ordered descending by geometric score.
// Postcondition: any two survivors differ by at least TranslationThresh in
// translation or RotationThresh in rotation.
func SuppressDuplicates(candidates []Candidate, params NMSParams) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	// Score-descending scan: each candidate survives unless an already kept,
	// higher scored one is within both thresholds.
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].GeometricScore > candidates[order[b]].GeometricScore
	})

	kept := make([]Candidate, 0, len(candidates))
	for _, i := range order {
		c := candidates[i]
		duplicate := false
		for _, k := range kept {
			if c.Pose.T.Dist(k.Pose.T) < params.TranslationThresh &&
				c.Pose.R.AngleTo(k.Pose.R) < params.RotationThresh {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}
	return kept
}
