package pattern

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Common errors for pattern record validation.
var (
	ErrEmptyID             = errors.New("pattern id cannot be empty")
	ErrInvalidConfidence   = errors.New("confidence must be between 0.0 and 1.0")
	ErrNegativeAccessCount = errors.New("access count cannot be negative")
	ErrEmptyNamespaces     = errors.New("namespaces set cannot be empty")
	ErrMixedNamespaces     = errors.New("namespaces must share a single top-level prefix")
	ErrInvalidTimestamps   = errors.New("last accessed cannot be before created at")
	ErrNestedContext       = errors.New("context values must be scalar")
)

// Status represents the lifecycle state of a pattern record.
type Status string

const (
	// StatusActive indicates the record participates in queries and merges.
	StatusActive Status = "active"

	// StatusMarkedForRemoval indicates decay pushed confidence below the
	// low-water mark. The record is kept until explicitly removed.
	StatusMarkedForRemoval Status = "marked_for_removal"
)

// Record is a learned, reusable insight held by a pattern store.
//
// Confidence is a belief strength in [0.0, 1.0], not a strict probability.
// It is raised by successful applications, lowered faster by failures, and
// decays multiplicatively after prolonged disuse.
type Record struct {
	// ID is the stable identifier, unique within a store.
	ID string `json:"id" yaml:"id"`

	// Type is a categorical tag (e.g. "validation_insight", "workflow").
	Type string `json:"pattern_type" yaml:"pattern_type"`

	// Confidence is the current belief strength, clamped to [0.0, 1.0].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// AccessCount is incremented on every successful application.
	AccessCount int `json:"access_count" yaml:"access_count"`

	// CreatedAt is when the record was first learned (UTC).
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// LastAccessed is when the record was last applied (UTC).
	// Never earlier than CreatedAt.
	LastAccessed time.Time `json:"last_accessed" yaml:"last_accessed"`

	// Namespaces identifies the logical owners of the pattern, for example
	// workspace.<project> or core.<module>. Stored sorted, never empty.
	Namespaces []string `json:"namespaces" yaml:"namespaces"`

	// Context is an opaque string-to-string payload describing the pattern.
	// The store treats it as an unordered bag of keys for similarity
	// scoring and never interprets it semantically.
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`

	// SourceID identifies the originating store or machine, kept for audit
	// and conflict tie-breaking.
	SourceID string `json:"source_id" yaml:"source_id"`

	// Status is the lifecycle state (active or marked_for_removal).
	Status Status `json:"status" yaml:"status"`
}

// Clamp returns v bounded to the valid confidence range [0.0, 1.0].
func Clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Prefix returns the top-level prefix of a namespace, i.e. the text before
// the first dot. "workspace.demo" yields "workspace"; a namespace without a
// dot is its own prefix.
func Prefix(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[:i]
	}
	return namespace
}

// MatchesPrefix reports whether any namespace equals the query prefix or
// nests below it. Matching is segment-aware: "workspace" matches
// "workspace.demo" but "work" does not. An empty prefix matches everything.
func MatchesPrefix(namespaces []string, prefix string) bool {
	if prefix == "" {
		return true
	}
	for _, ns := range namespaces {
		if ns == prefix || strings.HasPrefix(ns, prefix+".") {
			return true
		}
	}
	return false
}

// MixedPrefixes reports whether the given namespaces span more than one
// top-level prefix.
func MixedPrefixes(namespaces []string) bool {
	if len(namespaces) < 2 {
		return false
	}
	first := Prefix(namespaces[0])
	for _, ns := range namespaces[1:] {
		if Prefix(ns) != first {
			return true
		}
	}
	return false
}

// Validate checks the record invariants. Returns the first violation found.
func (r *Record) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, r.Confidence)
	}
	if r.AccessCount < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeAccessCount, r.AccessCount)
	}
	if len(r.Namespaces) == 0 {
		return ErrEmptyNamespaces
	}
	if MixedPrefixes(r.Namespaces) {
		return fmt.Errorf("%w: %v", ErrMixedNamespaces, r.Namespaces)
	}
	if !r.CreatedAt.IsZero() && !r.LastAccessed.IsZero() && r.LastAccessed.Before(r.CreatedAt) {
		return fmt.Errorf("%w: created %s, accessed %s",
			ErrInvalidTimestamps, r.CreatedAt.Format(time.RFC3339), r.LastAccessed.Format(time.RFC3339))
	}
	return nil
}

// Normalize puts the record into canonical form: UTC timestamps, sorted and
// deduplicated namespaces, default status. It does not validate.
func (r *Record) Normalize() {
	r.CreatedAt = r.CreatedAt.UTC()
	r.LastAccessed = r.LastAccessed.UTC()
	if r.LastAccessed.Before(r.CreatedAt) {
		r.LastAccessed = r.CreatedAt
	}
	r.Namespaces = dedupSorted(r.Namespaces)
	if r.Status == "" {
		r.Status = StatusActive
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	cp := *r
	cp.Namespaces = append([]string(nil), r.Namespaces...)
	if r.Context != nil {
		cp.Context = make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			cp.Context[k] = v
		}
	}
	return cp
}

// ContextKeys returns the sorted context keys of the record.
func (r *Record) ContextKeys() []string {
	keys := make([]string, 0, len(r.Context))
	for k := range r.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeContext flattens a free-form payload into the string-to-string
// form the store accepts. Scalars are stringified; nested maps and lists are
// rejected at the boundary rather than propagated into core logic.
func NormalizeContext(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'g', -1, 64)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("%w: key %q holds %T", ErrNestedContext, k, v)
		}
	}
	return out, nil
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
