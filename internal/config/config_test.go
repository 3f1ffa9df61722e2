package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadBytes([]byte("store:\n  path: /tmp/patterns.yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Buffer.Capacity)
	assert.Equal(t, 90*24*time.Hour, cfg.Decay.Staleness.Duration())
	assert.Equal(t, 0.9, cfg.Decay.Factor)
	assert.Equal(t, 0.20, cfg.Decay.LowWaterMark)
	assert.Equal(t, 0.5, cfg.Export.MinConfidence)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadBytes_Overrides(t *testing.T) {
	t.Parallel()

	raw := `
source_id: machine-a
store:
  path: /data/patterns.yaml
buffer:
  capacity: 5
  log_path: /data/buffer.jsonl
  sync_on_append: true
decay:
  staleness: 720h
  factor: 0.8
  low_water_mark: 0.1
  interval: 1h
export:
  min_confidence: 0.7
logging:
  level: debug
  format: console
`
	cfg, err := LoadBytes([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "machine-a", cfg.SourceID)
	assert.Equal(t, 5, cfg.Buffer.Capacity)
	assert.True(t, cfg.Buffer.SyncOnAppend)
	assert.Equal(t, 30*24*time.Hour, cfg.Decay.Staleness.Duration())
	assert.Equal(t, 0.8, cfg.Decay.Factor)
	assert.Equal(t, time.Hour, cfg.Decay.Interval.Duration())
	assert.Equal(t, 0.7, cfg.Export.MinConfidence)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadBytes_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"missing store path", "buffer:\n  capacity: 3\n", ErrEmptyStorePath},
		{"zero capacity", "store:\n  path: /p\nbuffer:\n  capacity: 0\n", ErrInvalidCapacity},
		{"bad factor", "store:\n  path: /p\ndecay:\n  factor: 1.5\n", ErrInvalidFactor},
		{"bad water mark", "store:\n  path: /p\ndecay:\n  low_water_mark: 1.0\n", ErrInvalidWaterMark},
		{"bad threshold", "store:\n  path: /p\nexport:\n  min_confidence: 2\n", ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadBytes([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadBytes_NegativeDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadBytes([]byte("store:\n  path: /p\ndecay:\n  staleness: -1h\n"))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: /data/patterns.yaml\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/patterns.yaml", cfg.Store.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
