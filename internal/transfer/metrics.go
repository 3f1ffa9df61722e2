package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExportsTotal counts manifest exports.
	ExportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "transfer",
			Name:      "exports_total",
			Help:      "Total number of manifests exported",
		},
	)

	// ImportsTotal counts import operations.
	// Labels: result (success, error)
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "transfer",
			Name:      "imports_total",
			Help:      "Total number of import operations",
		},
		[]string{"result"},
	)

	// ImportedRecordsTotal counts per-record import resolutions.
	// Labels: outcome (new, kept_higher_confidence, weighted_merge,
	// kept_local, replaced, skipped, rejected_namespace, rejected_invalid)
	ImportedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "transfer",
			Name:      "imported_records_total",
			Help:      "Total number of records processed during imports by outcome",
		},
		[]string{"outcome"},
	)
)
