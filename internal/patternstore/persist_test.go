package patternstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

func TestSaveAndReopen_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")

	s, err := Open(path, WithSourceID("machine-a"))
	require.NoError(t, err)

	rec := pattern.Record{
		ID:           "p1",
		Type:         "workflow",
		Confidence:   0.875,
		AccessCount:  12,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		LastAccessed: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Namespaces:   []string{"workspace.demo", "workspace.other"},
		Context:      map[string]string{"topic": "io", "lang": "go"},
		SourceID:     "machine-a",
		Status:       pattern.StatusActive,
	}
	_, err = s.Upsert(rec)
	require.NoError(t, err)
	require.NoError(t, s.Save())
	require.NoError(t, s.Close())

	reopened, err := Open(path, WithSourceID("machine-a"))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Confidence, got.Confidence)
	assert.Equal(t, rec.AccessCount, got.AccessCount)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.LastAccessed.Equal(got.LastAccessed))
	assert.Equal(t, rec.Namespaces, got.Namespaces)
	assert.Equal(t, rec.Context, got.Context)
	assert.Equal(t, rec.SourceID, got.SourceID)
	assert.Equal(t, rec.Status, got.Status)
}

func TestSave_Deterministic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	s, err := Open(path, WithSourceID("machine-a"))
	require.NoError(t, err)
	defer s.Close()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		rec := testRecord(id, 0.42, 3)
		_, err := s.Upsert(rec)
		require.NoError(t, err)
	}

	require.NoError(t, s.Save())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, s.Save())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "saving an unchanged store must produce byte-identical output")
}

func TestOpen_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("records: [not, a, mapping"), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestOpen_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"2.0\"\nrecords: {}\n"), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestOpen_InvalidRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	raw := `version: "1.0"
records:
  p1:
    pattern_type: workflow
    confidence: 3.5
    namespaces: [workspace.demo]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestOpen_SecondProcessIsLockedOut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrStoreLocked)
}

func TestClose_ReleasesLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
}

func TestClosedStore_RefusesMutation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Upsert(testRecord("p1", 0.5, 0))
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Save(), ErrStoreClosed)
}

func TestOpen_GeneratesSourceID(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "patterns.yaml"))
	require.NoError(t, err)
	defer s.Close()
	assert.NotEmpty(t, s.SourceID())
}
