package transfer

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
	"github.com/fyrsmithlabs/patternbank/internal/patternstore"
)

// Export produces a signed manifest of the store's records matching the
// scope. The source store is only read, never mutated. Records are ordered
// by id and the serialization is deterministic, so exporting an unchanged
// store with the same timestamp yields byte-identical output.
func Export(store *patternstore.Store, scope Scope, now time.Time, logger *logging.Logger) (*Manifest, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	var records []pattern.Record
	for _, rec := range store.Snapshot() {
		if !pattern.MatchesPrefix(rec.Namespaces, scope.NamespacePrefix) {
			continue
		}
		if rec.Confidence < scope.MinConfidence {
			continue
		}
		records = append(records, rec)
	}

	m := &Manifest{
		Version:    ManifestVersion,
		ExportedAt: now.UTC(),
		SourceID:   store.SourceID(),
		Scope:      scope,
		Records:    records,
		Statistics: summarize(records),
	}
	if err := Sign(m); err != nil {
		return nil, err
	}

	ExportsTotal.Inc()
	logger.Info("pattern store exported",
		zap.String("source_id", m.SourceID),
		zap.String("namespace_prefix", scope.NamespacePrefix),
		zap.Int("records", len(records)))
	return m, nil
}

// summarize computes manifest statistics: record count, confidence range,
// and the sorted union of namespaces.
func summarize(records []pattern.Record) Statistics {
	stats := Statistics{RecordCount: len(records)}
	if len(records) == 0 {
		stats.Namespaces = []string{}
		return stats
	}

	seen := make(map[string]struct{})
	stats.MinConfidence = records[0].Confidence
	stats.MaxConfidence = records[0].Confidence
	for _, rec := range records {
		if rec.Confidence < stats.MinConfidence {
			stats.MinConfidence = rec.Confidence
		}
		if rec.Confidence > stats.MaxConfidence {
			stats.MaxConfidence = rec.Confidence
		}
		for _, ns := range rec.Namespaces {
			seen[ns] = struct{}{}
		}
	}

	stats.Namespaces = make([]string, 0, len(seen))
	for ns := range seen {
		stats.Namespaces = append(stats.Namespaces, ns)
	}
	sort.Strings(stats.Namespaces)
	return stats
}
