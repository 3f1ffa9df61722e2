package patternstore

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/merge"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// Store is a persistent collection of pattern records keyed by id.
//
// Reads may run concurrently; every mutating operation is serialized behind
// the write lock. One Store instance owns its on-disk path exclusively for
// its lifetime (see Open).
type Store struct {
	mu       sync.RWMutex
	records  map[string]*pattern.Record
	path     string
	sourceID string
	lock     interface{ Unlock() error }
	logger   *logging.Logger
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSourceID sets the identity stamped on records learned by this store.
// Defaults to a generated UUID.
func WithSourceID(id string) Option {
	return func(s *Store) { s.sourceID = id }
}

// SourceID returns the store's identity used for audit and tie-breaking.
func (s *Store) SourceID() string {
	return s.sourceID
}

// Path returns the on-disk location backing the store.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of records held, including those marked for removal.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (pattern.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return pattern.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Upsert inserts the record, or resolves it against the existing record with
// the same id using the shared merge logic. Duplicate ids are never silently
// overwritten.
func (s *Store) Upsert(rec pattern.Record) (UpsertResult, error) {
	return s.Apply(rec, merge.StrategyAuto)
}

// Apply is Upsert with an explicit strategy override. The transfer engine
// uses it to honor caller-supplied import strategies; everything funnels
// through the same resolution path.
func (s *Store) Apply(rec pattern.Record, strategy merge.Strategy) (UpsertResult, error) {
	rec.Normalize()
	if rec.SourceID == "" {
		rec.SourceID = s.sourceID
	}
	if err := rec.Validate(); err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return UpsertResult{}, ErrStoreClosed
	}

	existing, ok := s.records[rec.ID]
	if !ok {
		clone := rec.Clone()
		s.records[rec.ID] = &clone
		RecordsGauge.Set(float64(len(s.records)))
		UpsertsTotal.WithLabelValues(string(merge.OutcomeNew)).Inc()
		s.logger.Debug("pattern inserted",
			zap.String("id", rec.ID),
			zap.Float64("confidence", rec.Confidence))
		return UpsertResult{Outcome: merge.OutcomeNew, Changed: true, Confidence: rec.Confidence}, nil
	}

	res, err := merge.Resolve(existing, &rec, strategy)
	if err != nil {
		return UpsertResult{}, err
	}

	changed := !reflect.DeepEqual(*existing, res.Merged)
	if changed {
		merged := res.Merged.Clone()
		s.records[rec.ID] = &merged
	}

	UpsertsTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.Conflict != nil {
		s.logger.Warn("pattern conflict kept local",
			zap.String("id", rec.ID),
			zap.String("reason", res.Conflict.Reason),
			zap.Float64("local_confidence", res.Conflict.LocalConfidence),
			zap.Float64("incoming_confidence", res.Conflict.IncomingConfidence))
	} else {
		s.logger.Trace("pattern resolved",
			zap.String("id", rec.ID),
			zap.String("outcome", string(res.Outcome)),
			zap.Float64("similarity", res.Similarity))
	}

	return UpsertResult{
		Outcome:    res.Outcome,
		Changed:    changed,
		Confidence: res.Merged.Confidence,
		Similarity: res.Similarity,
		Conflict:   res.Conflict,
	}, nil
}

// QueryByNamespace returns records owned by namespaces under the given
// prefix, sorted by confidence descending, ties broken by access count
// descending, then id ascending. The ordering is deterministic so results
// are reproducible.
//
// A prefix matches namespaces equal to it or nested below it: "workspace"
// and "workspace.demo" both match a record in workspace.demo, while "work"
// matches nothing. An empty prefix matches everything.
func (s *Store) QueryByNamespace(prefix string) []pattern.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pattern.Record
	for _, rec := range s.records {
		if pattern.MatchesPrefix(rec.Namespaces, prefix) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].AccessCount != out[j].AccessCount {
			return out[i].AccessCount > out[j].AccessCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RecordUsage updates a record after an application attempt. Success raises
// confidence by 0.05 and increments the access count; failure lowers
// confidence by 0.10. Confidence stays clamped to [0.0, 1.0] and
// last-accessed advances in both cases.
func (s *Store) RecordUsage(id string, success bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if success {
		rec.Confidence = pattern.Clamp(rec.Confidence + successDelta)
		rec.AccessCount++
		UsageRecordingsTotal.WithLabelValues("success").Inc()
	} else {
		rec.Confidence = pattern.Clamp(rec.Confidence - failurePenalty)
		UsageRecordingsTotal.WithLabelValues("failure").Inc()
	}
	rec.LastAccessed = now.UTC()
	if rec.LastAccessed.Before(rec.CreatedAt) {
		rec.LastAccessed = rec.CreatedAt
	}
	return nil
}

// DecayStale multiplies the confidence of every record unused for longer
// than opts.Staleness by opts.Factor, flagging records that fall below the
// low-water mark as marked_for_removal. Nothing is deleted and confidence
// never increases. Returns the sorted ids of affected records.
//
// The pass is purely in-memory: call Save to persist the result.
func (s *Store) DecayStale(now time.Time, opts DecayOptions) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []string
	cutoff := now.UTC().Add(-opts.Staleness)
	for id, rec := range s.records {
		if !rec.LastAccessed.Before(cutoff) {
			continue
		}
		rec.Confidence = pattern.Clamp(rec.Confidence * opts.Factor)
		if rec.Confidence < opts.LowWaterMark {
			rec.Status = pattern.StatusMarkedForRemoval
		}
		affected = append(affected, id)
	}
	sort.Strings(affected)

	if len(affected) > 0 {
		DecayedRecordsTotal.Add(float64(len(affected)))
		s.logger.Info("stale patterns decayed",
			zap.Int("affected", len(affected)),
			zap.Float64("factor", opts.Factor))
	}
	return affected
}

// Remove deletes the record with the given id. Removing a missing id is not
// an error.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		delete(s.records, id)
		RecordsGauge.Set(float64(len(s.records)))
		s.logger.Debug("pattern removed", zap.String("id", id))
	}
}

// Snapshot returns a copy of every record, sorted by id. The transfer
// engine exports from snapshots so it never reads store internals.
func (s *Store) Snapshot() []pattern.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pattern.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
