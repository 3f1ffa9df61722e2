package merge

import (
	"math"

	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// Similarity weighting constants. These are a documented behavioral
// contract: downstream consumers depend on the exact thresholds, so
// changing them is a behavioral change, not a tuning exercise.
const (
	// confidenceWeight scales how much confidence agreement contributes.
	confidenceWeight = 0.7

	// contextWeight scales how much context-key overlap contributes.
	contextWeight = 0.3

	// NearIdenticalThreshold separates near-identical from similar records.
	NearIdenticalThreshold = 0.98

	// SimilarThreshold separates similar from contradictory records.
	SimilarThreshold = 0.80
)

// Similarity scores how close two records with the same id are, in [0.0, 1.0].
//
// The score combines confidence agreement (weight 0.7) with Jaccard overlap
// of the context key sets (weight 0.3). Two empty contexts count as fully
// overlapping.
func Similarity(local, incoming *pattern.Record) float64 {
	confidence := 1.0 - math.Abs(local.Confidence-incoming.Confidence)
	return confidenceWeight*confidence + contextWeight*contextSimilarity(local.Context, incoming.Context)
}

// contextSimilarity is the Jaccard index over context key sets.
func contextSimilarity(local, incoming map[string]string) float64 {
	if len(local) == 0 && len(incoming) == 0 {
		return 1.0
	}
	common := 0
	for k := range local {
		if _, ok := incoming[k]; ok {
			common++
		}
	}
	union := len(local) + len(incoming) - common
	if union == 0 {
		return 1.0
	}
	return float64(common) / float64(union)
}
