package knowledge

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/config"
	"github.com/fyrsmithlabs/patternbank/internal/conversation"
	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/merge"
	"github.com/fyrsmithlabs/patternbank/internal/patternstore"
	"github.com/fyrsmithlabs/patternbank/internal/transfer"
)

// Service composes the conversation buffer, the pattern store, and the
// transfer engine behind one lifecycle.
type Service struct {
	cfg       *config.Config
	buffer    *conversation.Buffer
	store     *patternstore.Store
	extractor conversation.Extractor
	logger    *logging.Logger
}

// HarvestResult summarizes one eviction-and-extraction pass.
type HarvestResult struct {
	// Extracted is the number of records the extractor produced.
	Extracted int

	// Applied is the number of records that reached the store.
	Applied int

	// Failures lists the evicted conversations whose extraction failed.
	// Their entries are gone regardless; the failure is informational.
	Failures []conversation.ExtractionFailure
}

// New builds a Service from configuration. It opens (and locks) the pattern
// store at cfg.Store.Path and, when cfg.Buffer.LogPath is set, replays the
// buffer event log so buffered conversations survive restarts.
//
// The extractor may be nil, in which case evicted entries produce no
// patterns. Callers must Close the returned service.
func New(cfg *config.Config, extractor conversation.Extractor, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	storeOpts := []patternstore.Option{patternstore.WithLogger(logger.Named("store"))}
	if cfg.SourceID != "" {
		storeOpts = append(storeOpts, patternstore.WithSourceID(cfg.SourceID))
	}
	store, err := patternstore.Open(cfg.Store.Path, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	var buffer *conversation.Buffer
	bufferLogger := conversation.WithLogger(logger.Named("buffer"))
	if cfg.Buffer.LogPath != "" {
		buffer, err = conversation.Restore(cfg.Buffer.Capacity, cfg.Buffer.LogPath, cfg.Buffer.SyncOnAppend, bufferLogger)
	} else {
		buffer, err = conversation.NewBuffer(cfg.Buffer.Capacity, bufferLogger)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build conversation buffer: %w", err)
	}

	return &Service{
		cfg:       cfg,
		buffer:    buffer,
		store:     store,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Buffer exposes the conversation buffer for append/query operations.
func (s *Service) Buffer() *conversation.Buffer {
	return s.buffer
}

// Store exposes the pattern store for get/query/usage operations.
func (s *Service) Store() *patternstore.Store {
	return s.store
}

// Harvest drains the buffer's staged evictions through the extractor and
// upserts the produced records, persisting the store when anything landed.
// Extraction failures never abort the pass.
func (s *Service) Harvest() (HarvestResult, error) {
	records, failures := s.buffer.EvictAndExtract(s.extractor)
	result := HarvestResult{Extracted: len(records), Failures: failures}

	for _, rec := range records {
		if _, err := s.store.Upsert(rec); err != nil {
			s.logger.Warn("extracted pattern rejected",
				zap.String("id", rec.ID),
				zap.Error(err))
			continue
		}
		result.Applied++
	}

	if result.Applied > 0 {
		if err := s.store.Save(); err != nil {
			return result, fmt.Errorf("failed to persist harvested patterns: %w", err)
		}
	}

	s.logger.Debug("harvest pass completed",
		zap.Int("extracted", result.Extracted),
		zap.Int("applied", result.Applied),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

// Decay runs one confidence-decay pass with the configured staleness, factor,
// and low-water mark, persisting the store when anything decayed. Returns the
// ids of affected records.
func (s *Service) Decay(now time.Time) ([]string, error) {
	affected := s.store.DecayStale(now, patternstore.DecayOptions{
		Staleness:    time.Duration(s.cfg.Decay.Staleness),
		Factor:       s.cfg.Decay.Factor,
		LowWaterMark: s.cfg.Decay.LowWaterMark,
	})
	if len(affected) == 0 {
		return nil, nil
	}
	if err := s.store.Save(); err != nil {
		return affected, fmt.Errorf("failed to persist decayed patterns: %w", err)
	}
	return affected, nil
}

// ExportToFile writes a signed manifest of records under the namespace
// prefix to path. The configured minimum confidence filters weak patterns.
func (s *Service) ExportToFile(path, namespacePrefix string, now time.Time) (*transfer.Manifest, error) {
	scope := transfer.Scope{
		NamespacePrefix: namespacePrefix,
		MinConfidence:   s.cfg.Export.MinConfidence,
	}
	m, err := transfer.Export(s.store, scope, now, s.logger)
	if err != nil {
		return nil, err
	}
	if err := transfer.WriteManifest(m, path); err != nil {
		return nil, err
	}
	return m, nil
}

// ImportFromFile reconciles the manifest at path into the store and persists
// the result when anything was applied.
func (s *Service) ImportFromFile(path string, strategy merge.Strategy) (*transfer.Report, error) {
	m, err := transfer.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	report, err := transfer.Import(s.store, m, strategy, s.logger)
	if err != nil {
		return nil, err
	}
	if report.Applied() > 0 {
		if err := s.store.Save(); err != nil {
			return report, fmt.Errorf("failed to persist imported patterns: %w", err)
		}
	}
	return report, nil
}

// Close releases the buffer's event log and the store's file lock. The store
// contents are not saved implicitly; call Save-bearing operations first.
func (s *Service) Close() error {
	return errors.Join(s.buffer.Close(), s.store.Close())
}
