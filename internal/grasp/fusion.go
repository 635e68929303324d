package grasp

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SemanticScore scores a candidate against the relevancy field: the median
// relevancy of field points falling inside the candidate's bounding box, or
// 0 when the box contains no field points. The result is unnormalised;
// Fuse maps the whole array into [0,1].
func SemanticScore(c Candidate, field *RelevancyField) float64 {
	idx := c.BoundingBox().PointsInside(field.Points)
	if len(idx) == 0 {
		return 0
	}
	inside := make([]float64, len(idx))
	for i, j := range idx {
		inside[i] = field.Scores[j]
	}
	sort.Float64s(inside)
	return stat.Quantile(0.5, stat.Empirical, inside, nil)
}

// Fuse assigns semantic and fused scores to every candidate in place.
// Semantic scores are normalised by the array's own maximum so the best
// candidate scores 1.0; a field touching no candidate leaves all semantic
// scores at zero. fused = weight*semantic + (1-weight)*geometric, so
// weight 1 reproduces the semantic ordering and weight 0 the geometric one.
func Fuse(set *CandidateSet, field *RelevancyField, weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("fusion weight %g outside [0,1]", weight)
	}
	if err := field.Validate(); err != nil {
		return fmt.Errorf("relevancy field: %w", err)
	}

	semantic := make([]float64, set.Len())
	maxSem := 0.0
	for i, c := range set.Candidates {
		semantic[i] = SemanticScore(c, field)
		if semantic[i] > maxSem {
			maxSem = semantic[i]
		}
	}
	if maxSem > 0 {
		for i := range semantic {
			semantic[i] /= maxSem
		}
	}

	for i := range set.Candidates {
		c := &set.Candidates[i]
		c.SemanticScore = semantic[i]
		c.FusedScore = weight*c.SemanticScore + (1-weight)*c.GeometricScore
	}
	return nil
}

// Select returns the candidates whose fused score strictly exceeds the
// q-quantile of all fused scores, ordered descending by fused score. For a
// smooth score distribution this keeps roughly the top (1-q) fraction.
func Select(set *CandidateSet, q float64) (*CandidateSet, error) {
	if q < 0 || q > 1 {
		return nil, fmt.Errorf("selection quantile %g outside [0,1]", q)
	}
	if set.Len() == 0 {
		return &CandidateSet{}, nil
	}

	scores := make([]float64, set.Len())
	for i, c := range set.Candidates {
		scores[i] = c.FusedScore
	}
	sort.Float64s(scores)
	threshold := stat.Quantile(q, stat.Empirical, scores, nil)

	selected := &CandidateSet{}
	for _, c := range set.Candidates {
		if c.FusedScore > threshold {
			selected.Add(c)
		}
	}
	selected.SortByFusedScore()
	return selected, nil
}

// Rescale linearly remaps the selected set's fused scores onto [0,1] using
// the subset's own minimum and maximum. When every score is identical the
// remap is degenerate; scores are then pinned to exactly 1.0 rather than
// dividing by zero.
func Rescale(set *CandidateSet) {
	if set.Len() == 0 {
		return
	}
	min, max := set.Candidates[0].FusedScore, set.Candidates[0].FusedScore
	for _, c := range set.Candidates[1:] {
		if c.FusedScore < min {
			min = c.FusedScore
		}
		if c.FusedScore > max {
			max = c.FusedScore
		}
	}
	if max == min {
		for i := range set.Candidates {
			set.Candidates[i].FusedScore = 1.0
		}
		return
	}
	span := max - min
	for i := range set.Candidates {
		set.Candidates[i].FusedScore = (set.Candidates[i].FusedScore - min) / span
	}
}
