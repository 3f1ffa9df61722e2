package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternbank/internal/merge"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// ManifestVersion is the export format version. Importers refuse manifests
// whose major version they do not understand.
const ManifestVersion = "1.0"

// Common errors for transfer operations.
var (
	ErrCorruptManifest    = errors.New("unparseable export manifest")
	ErrUnsupportedVersion = errors.New("unsupported manifest version")
	ErrSignatureMismatch  = errors.New("manifest signature mismatch")
)

// SignatureMismatchError carries the diagnostic detail for a failed
// integrity check. It unwraps to ErrSignatureMismatch.
type SignatureMismatchError struct {
	Expected string
	Computed string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("manifest signature mismatch: manifest declares %s, canonical bytes hash to %s",
		e.Expected, e.Computed)
}

func (e *SignatureMismatchError) Unwrap() error {
	return ErrSignatureMismatch
}

// Scope is the filter an export was produced with.
type Scope struct {
	// NamespacePrefix selects records owned under the prefix.
	// Empty selects everything.
	NamespacePrefix string `json:"namespace_prefix"`

	// MinConfidence excludes records below the threshold.
	MinConfidence float64 `json:"min_confidence"`
}

// Statistics summarizes a manifest's contents.
type Statistics struct {
	RecordCount   int      `json:"record_count"`
	MinConfidence float64  `json:"min_confidence"`
	MaxConfidence float64  `json:"max_confidence"`
	Namespaces    []string `json:"namespaces"`
}

// Manifest is the portable, signed snapshot of a pattern store.
//
// Field order matters: the canonical byte representation used for signing
// is the JSON encoding of the struct with the signature cleared, so fields
// marshal in declaration order.
type Manifest struct {
	Version    string           `json:"version"`
	ExportedAt time.Time        `json:"export_timestamp"`
	SourceID   string           `json:"source_id"`
	Scope      Scope            `json:"scope"`
	Records    []pattern.Record `json:"records"`
	Statistics Statistics       `json:"statistics"`
	Signature  string           `json:"signature,omitempty"`
}

// AuditEntry records how one manifest record was resolved during import.
type AuditEntry struct {
	// ID is a ULID assigned at import time, sortable by arrival.
	ID string `json:"id"`

	// RecordID is the pattern record the entry concerns.
	RecordID string `json:"record_id"`

	// Outcome tags the resolution.
	Outcome merge.Outcome `json:"outcome"`

	// Similarity is the computed similarity for merge outcomes.
	Similarity float64 `json:"similarity,omitempty"`

	// Confidence is the resulting record's confidence, when applied.
	Confidence float64 `json:"confidence,omitempty"`

	// Reason explains rejections.
	Reason string `json:"reason,omitempty"`

	// Conflict carries both sides of a kept-local disagreement.
	Conflict *merge.Conflict `json:"conflict,omitempty"`
}

// Report summarizes an import: counts per outcome plus the full audit log.
// Per-record conflicts are expected outcomes, never errors.
type Report struct {
	SourceID    string                `json:"source_id"`
	Counts      map[merge.Outcome]int `json:"counts"`
	RejectedIDs []string              `json:"rejected_ids,omitempty"`
	Audit       []AuditEntry          `json:"audit"`
}

// Count returns the number of records resolved with the given outcome.
func (r *Report) Count(outcome merge.Outcome) int {
	return r.Counts[outcome]
}

// Applied returns the number of records that reached the target store,
// regardless of how they were resolved there.
func (r *Report) Applied() int {
	total := 0
	for outcome, n := range r.Counts {
		switch outcome {
		case merge.OutcomeRejectedNamespace, merge.OutcomeRejectedInvalid:
		default:
			total += n
		}
	}
	return total
}
