package transfer

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/merge"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
	"github.com/fyrsmithlabs/patternbank/internal/patternstore"
)

// Import reconciles a manifest into the target store.
//
// The signature is verified before anything is applied: on mismatch the
// whole import fails and the target is untouched. Namespace validation then
// runs record by record — offending records are rejected individually while
// the rest of the import proceeds. Every surviving record goes through the
// shared merge logic, and each resolution is recorded in the audit log.
// Per-record conflicts never abort the import; only integrity failures do.
func Import(store *patternstore.Store, m *Manifest, strategy merge.Strategy, logger *logging.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", merge.ErrUnknownStrategy, strategy)
	}
	if strategy == "" {
		strategy = merge.StrategyAuto
	}

	if err := Verify(m); err != nil {
		ImportsTotal.WithLabelValues("error").Inc()
		logger.Error("manifest rejected", zap.Error(err))
		return nil, err
	}

	report := &Report{
		SourceID: m.SourceID,
		Counts:   make(map[merge.Outcome]int),
	}

	for _, rec := range m.Records {
		incoming := rec.Clone()
		incoming.Normalize()

		if err := incoming.Validate(); err != nil {
			outcome := merge.OutcomeRejectedInvalid
			if errors.Is(err, pattern.ErrMixedNamespaces) {
				outcome = merge.OutcomeRejectedNamespace
			}
			report.Counts[outcome]++
			report.RejectedIDs = append(report.RejectedIDs, incoming.ID)
			report.Audit = append(report.Audit, AuditEntry{
				ID:       ulid.Make().String(),
				RecordID: incoming.ID,
				Outcome:  outcome,
				Reason:   err.Error(),
			})
			ImportedRecordsTotal.WithLabelValues(string(outcome)).Inc()
			logger.Warn("record rejected during import",
				zap.String("record_id", incoming.ID),
				zap.Error(err))
			continue
		}

		res, err := store.Apply(incoming, strategy)
		if err != nil {
			// Apply only fails on validation (already done) or a closed
			// store; the latter is structural and aborts the import.
			ImportsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to apply record %q: %w", incoming.ID, err)
		}

		entry := AuditEntry{
			ID:         ulid.Make().String(),
			RecordID:   incoming.ID,
			Outcome:    res.Outcome,
			Similarity: res.Similarity,
			Confidence: res.Confidence,
			Conflict:   res.Conflict,
		}
		report.Counts[res.Outcome]++
		report.Audit = append(report.Audit, entry)
		ImportedRecordsTotal.WithLabelValues(string(res.Outcome)).Inc()
	}

	ImportsTotal.WithLabelValues("success").Inc()
	logger.Info("manifest imported",
		zap.String("source_id", m.SourceID),
		zap.Int("records", len(m.Records)),
		zap.Int("applied", report.Applied()),
		zap.Int("rejected", len(report.RejectedIDs)))
	return report, nil
}
