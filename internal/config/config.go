package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
)

// Common errors for configuration validation.
var (
	ErrEmptyStorePath   = errors.New("store path cannot be empty")
	ErrInvalidCapacity  = errors.New("buffer capacity must be positive")
	ErrInvalidFactor    = errors.New("decay factor must be in (0.0, 1.0]")
	ErrInvalidWaterMark = errors.New("low-water mark must be in [0.0, 1.0)")
	ErrInvalidThreshold = errors.New("minimum confidence must be in [0.0, 1.0]")
)

// Config is the root configuration for the knowledge store.
type Config struct {
	// SourceID identifies this store/machine in exports and audit trails.
	// Generated when empty.
	SourceID string `koanf:"source_id"`

	Store   StoreConfig    `koanf:"store"`
	Buffer  BufferConfig   `koanf:"buffer"`
	Decay   DecayConfig    `koanf:"decay"`
	Export  ExportConfig   `koanf:"export"`
	Logging logging.Config `koanf:"logging"`
}

// StoreConfig configures the on-disk pattern store.
type StoreConfig struct {
	// Path is the YAML store file. Required.
	Path string `koanf:"path"`
}

// BufferConfig configures the conversation buffer.
type BufferConfig struct {
	// Capacity bounds the number of buffered entries. Default 20.
	Capacity int `koanf:"capacity"`

	// LogPath is the append-only event log replayed at startup.
	// Empty disables persistence.
	LogPath string `koanf:"log_path"`

	// SyncOnAppend fsyncs the event log after every write.
	SyncOnAppend bool `koanf:"sync_on_append"`
}

// DecayConfig configures confidence decay for stale patterns.
type DecayConfig struct {
	// Staleness is how long a record may go unused before decaying.
	// Default 90 days.
	Staleness Duration `koanf:"staleness"`

	// Factor multiplies the confidence of each stale record. Default 0.9.
	Factor float64 `koanf:"factor"`

	// LowWaterMark flags records for removal once confidence falls below
	// it. Default 0.20.
	LowWaterMark float64 `koanf:"low_water_mark"`

	// Interval is how often the scheduler runs decay. Default 24h.
	Interval Duration `koanf:"interval"`
}

// ExportConfig configures snapshot exports.
type ExportConfig struct {
	// MinConfidence filters out weak patterns from exports. Default 0.5.
	MinConfidence float64 `koanf:"min_confidence"`
}

// NewDefaultConfig returns the hardcoded defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Buffer: BufferConfig{
			Capacity: 20,
		},
		Decay: DecayConfig{
			Staleness:    Duration(90 * 24 * time.Hour),
			Factor:       0.9,
			LowWaterMark: 0.20,
			Interval:     Duration(24 * time.Hour),
		},
		Export: ExportConfig{
			MinConfidence: 0.5,
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return ErrEmptyStorePath
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Buffer.Capacity)
	}
	if c.Decay.Factor <= 0.0 || c.Decay.Factor > 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidFactor, c.Decay.Factor)
	}
	if c.Decay.LowWaterMark < 0.0 || c.Decay.LowWaterMark >= 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWaterMark, c.Decay.LowWaterMark)
	}
	if c.Export.MinConfidence < 0.0 || c.Export.MinConfidence > 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.Export.MinConfidence)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
