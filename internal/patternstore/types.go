package patternstore

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/patternbank/internal/merge"
)

// Common errors for store operations.
var (
	ErrNotFound     = errors.New("pattern not found")
	ErrStoreLocked  = errors.New("store path is locked by another process")
	ErrStoreClosed  = errors.New("store is closed")
	ErrCorruptStore = errors.New("corrupt store file")

	// ErrUnsupportedVersion indicates the on-disk store was written by an
	// incompatible major version.
	ErrUnsupportedVersion = errors.New("unsupported store file version")
)

// Usage update deltas. Failures erode confidence at twice the rate
// successes build it; downstream consumers depend on the exact values.
const (
	successDelta   = 0.05
	failurePenalty = 0.10
)

// UpsertResult reports how an upsert resolved.
type UpsertResult struct {
	// Outcome tags the resolution path taken.
	Outcome merge.Outcome

	// Changed reports whether the store contents differ from before.
	Changed bool

	// Confidence is the resulting record's confidence.
	Confidence float64

	// Similarity is the computed similarity for merge outcomes, zero for
	// plain inserts.
	Similarity float64

	// Conflict carries both sides of a kept-local disagreement for the
	// audit trail, nil otherwise.
	Conflict *merge.Conflict
}

// DecayOptions tunes a decay pass.
type DecayOptions struct {
	// Staleness is how long a record may go unused before decaying.
	Staleness time.Duration

	// Factor multiplies the confidence of each stale record.
	Factor float64

	// LowWaterMark flags records for removal once confidence falls below it.
	LowWaterMark float64
}

// DefaultDecayOptions returns the documented defaults: 90 days staleness,
// factor 0.9, low-water mark 0.20.
func DefaultDecayOptions() DecayOptions {
	return DecayOptions{
		Staleness:    90 * 24 * time.Hour,
		Factor:       0.9,
		LowWaterMark: 0.20,
	}
}
