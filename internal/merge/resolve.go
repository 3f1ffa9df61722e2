package merge

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// Common errors for merge resolution.
var (
	ErrIDMismatch      = errors.New("records must share the same id")
	ErrUnknownStrategy = errors.New("unknown merge strategy")
)

// Strategy is a caller-supplied override for conflict resolution.
type Strategy string

const (
	// StrategyAuto runs similarity-based classification.
	StrategyAuto Strategy = "auto"

	// StrategyReplace unconditionally takes the incoming record.
	StrategyReplace Strategy = "replace"

	// StrategySkip unconditionally keeps the local record.
	StrategySkip Strategy = "skip"
)

// Valid reports whether the strategy is one of the supported values.
// The empty string is accepted and treated as auto.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyReplace, StrategySkip, "":
		return true
	}
	return false
}

// Outcome tags how a record was resolved. Outcomes are expected results,
// reported in audit logs and never raised as errors.
type Outcome string

const (
	// OutcomeNew means there was no local record and the incoming one was
	// inserted directly.
	OutcomeNew Outcome = "new"

	// OutcomeKeptHigherConfidence means the records were near-identical and
	// the higher-confidence side survived (ties keep local).
	OutcomeKeptHigherConfidence Outcome = "kept_higher_confidence"

	// OutcomeWeightedMerge means the records were similar and merged with
	// usage-weighted confidence.
	OutcomeWeightedMerge Outcome = "weighted_merge"

	// OutcomeKeptLocal means the records were contradictory, or a weighted
	// merge was rejected to avoid mixing namespace prefixes; the local
	// record survived unchanged.
	OutcomeKeptLocal Outcome = "kept_local"

	// OutcomeReplaced means a replace override discarded the local record.
	OutcomeReplaced Outcome = "replaced"

	// OutcomeSkipped means a skip override discarded the incoming record.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeRejectedNamespace means the incoming record failed namespace
	// validation and was never considered for merging.
	OutcomeRejectedNamespace Outcome = "rejected_namespace"

	// OutcomeRejectedInvalid means the incoming record was malformed in
	// some other way (bad confidence, empty namespaces) and was rejected.
	OutcomeRejectedInvalid Outcome = "rejected_invalid"
)

// Conflict captures both sides of a contradictory or rejected merge for the
// audit trail.
type Conflict struct {
	Reason             string            `json:"reason"`
	LocalConfidence    float64           `json:"local_confidence"`
	IncomingConfidence float64           `json:"incoming_confidence"`
	LocalContext       map[string]string `json:"local_context,omitempty"`
	IncomingContext    map[string]string `json:"incoming_context,omitempty"`
}

// Resolution is the result of resolving a local record against an incoming
// one. Merged is always a usable record, even when the local side survived.
type Resolution struct {
	Outcome    Outcome
	Merged     pattern.Record
	Similarity float64

	// Conflict is set when the local record was kept over a disagreeing
	// incoming record, for traceability.
	Conflict *Conflict
}

// Resolve applies conflict resolution between a local and an incoming record
// sharing the same id.
//
// With StrategyAuto the classification runs in order: similarity above 0.98
// keeps the higher-confidence record, similarity in (0.80, 0.98] performs a
// usage-weighted merge, and anything at or below 0.80 keeps local and logs
// the conflict. Replace and skip overrides take precedence over
// classification. Resolve never mutates its arguments.
func Resolve(local, incoming *pattern.Record, strategy Strategy) (Resolution, error) {
	if local.ID != incoming.ID {
		return Resolution{}, fmt.Errorf("%w: local %q vs incoming %q", ErrIDMismatch, local.ID, incoming.ID)
	}
	if !strategy.Valid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	switch strategy {
	case StrategyReplace:
		return Resolution{Outcome: OutcomeReplaced, Merged: incoming.Clone()}, nil
	case StrategySkip:
		return Resolution{Outcome: OutcomeSkipped, Merged: local.Clone()}, nil
	}

	similarity := Similarity(local, incoming)

	switch {
	case similarity > NearIdenticalThreshold:
		return resolveNearIdentical(local, incoming, similarity), nil
	case similarity > SimilarThreshold:
		return resolveSimilar(local, incoming, similarity), nil
	default:
		return Resolution{
			Outcome:    OutcomeKeptLocal,
			Merged:     local.Clone(),
			Similarity: similarity,
			Conflict:   newConflict("contradictory", local, incoming),
		}, nil
	}
}

// resolveNearIdentical keeps whichever record has higher confidence, ties
// keeping local. The survivor's access count becomes the max of the two.
func resolveNearIdentical(local, incoming *pattern.Record, similarity float64) Resolution {
	survivor := local
	if incoming.Confidence > local.Confidence {
		survivor = incoming
	}
	merged := survivor.Clone()
	merged.AccessCount = max(local.AccessCount, incoming.AccessCount)
	if incoming.LastAccessed.After(merged.LastAccessed) {
		merged.LastAccessed = incoming.LastAccessed.UTC()
	}
	return Resolution{Outcome: OutcomeKeptHigherConfidence, Merged: merged, Similarity: similarity}
}

// resolveSimilar performs the usage-weighted merge. If the namespace union
// would mix top-level prefixes, the merge is rejected and local is kept,
// flagging the conflict for manual inspection.
func resolveSimilar(local, incoming *pattern.Record, similarity float64) Resolution {
	union := append(append([]string(nil), local.Namespaces...), incoming.Namespaces...)
	if pattern.MixedPrefixes(union) {
		return Resolution{
			Outcome:    OutcomeKeptLocal,
			Merged:     local.Clone(),
			Similarity: similarity,
			Conflict:   newConflict("namespace prefix mix", local, incoming),
		}
	}

	merged := local.Clone()
	merged.Confidence = pattern.Clamp(weightedConfidence(local, incoming))
	merged.AccessCount = local.AccessCount + incoming.AccessCount
	merged.Namespaces = union
	merged.Context = unionContext(local.Context, incoming.Context)
	if incoming.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = incoming.CreatedAt.UTC()
	}
	if incoming.LastAccessed.After(merged.LastAccessed) {
		merged.LastAccessed = incoming.LastAccessed.UTC()
	}
	merged.Normalize()
	return Resolution{Outcome: OutcomeWeightedMerge, Merged: merged, Similarity: similarity}
}

// weightedConfidence averages the two confidences proportionally to their
// access counts, falling back to a plain mean when both counts are zero.
func weightedConfidence(local, incoming *pattern.Record) float64 {
	total := local.AccessCount + incoming.AccessCount
	if total == 0 {
		return (local.Confidence + incoming.Confidence) / 2.0
	}
	return (local.Confidence*float64(local.AccessCount) +
		incoming.Confidence*float64(incoming.AccessCount)) / float64(total)
}

func newConflict(reason string, local, incoming *pattern.Record) *Conflict {
	return &Conflict{
		Reason:             reason,
		LocalConfidence:    local.Confidence,
		IncomingConfidence: incoming.Confidence,
		LocalContext:       cloneContext(local.Context),
		IncomingContext:    cloneContext(incoming.Context),
	}
}

// unionContext merges context maps, local values winning key collisions.
func unionContext(local, incoming map[string]string) map[string]string {
	if len(local) == 0 && len(incoming) == 0 {
		return nil
	}
	out := make(map[string]string, len(local)+len(incoming))
	for k, v := range incoming {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func cloneContext(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
