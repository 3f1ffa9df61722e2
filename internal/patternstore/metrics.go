package patternstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpsertsTotal counts upsert resolutions by outcome.
	// Labels: outcome (new, kept_higher_confidence, weighted_merge,
	// kept_local, replaced, skipped)
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "store",
			Name:      "upserts_total",
			Help:      "Total number of upsert operations by merge outcome",
		},
		[]string{"outcome"},
	)

	// UsageRecordingsTotal counts usage updates.
	// Labels: result (success, failure)
	UsageRecordingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "store",
			Name:      "usage_recordings_total",
			Help:      "Total number of recorded pattern applications",
		},
		[]string{"result"},
	)

	// DecayedRecordsTotal counts records whose confidence was decayed.
	DecayedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "store",
			Name:      "decayed_records_total",
			Help:      "Total number of records decayed for staleness",
		},
	)

	// RecordsGauge tracks the current number of records in open stores.
	RecordsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "patternbank",
			Subsystem: "store",
			Name:      "records",
			Help:      "Current number of pattern records held",
		},
	)

	// SavesTotal counts persistence operations.
	// Labels: result (success, error)
	SavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternbank",
			Subsystem: "store",
			Name:      "saves_total",
			Help:      "Total number of store save operations",
		},
		[]string{"result"},
	)
)
