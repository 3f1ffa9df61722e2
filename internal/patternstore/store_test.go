package patternstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternbank/internal/merge"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "patterns.yaml"), WithSourceID("test-store"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string, confidence float64, access int) pattern.Record {
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	return pattern.Record{
		ID:           id,
		Type:         "validation_insight",
		Confidence:   confidence,
		AccessCount:  access,
		CreatedAt:    now,
		LastAccessed: now,
		Namespaces:   []string{"workspace.demo"},
		Context:      map[string]string{"topic": "io"},
		SourceID:     "machine-a",
	}
}

func TestUpsert_InsertsNew(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	res, err := s.Upsert(testRecord("p1", 0.8, 2))
	require.NoError(t, err)

	assert.Equal(t, merge.OutcomeNew, res.Outcome)
	assert.True(t, res.Changed)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, 1, s.Len())

	got, err := s.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, pattern.StatusActive, got.Status, "normalize fills the default status")
}

func TestUpsert_RejectsInvalid(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	bad := testRecord("p1", 1.4, 0)
	_, err := s.Upsert(bad)
	assert.ErrorIs(t, err, pattern.ErrInvalidConfidence)

	mixed := testRecord("p2", 0.5, 0)
	mixed.Namespaces = []string{"workspace.app", "core.module"}
	_, err = s.Upsert(mixed)
	assert.ErrorIs(t, err, pattern.ErrMixedNamespaces)

	assert.Equal(t, 0, s.Len(), "rejected upserts must not partially apply")
}

func TestUpsert_DuplicateGoesThroughMerge(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Upsert(testRecord("p1", 0.88, 8))
	require.NoError(t, err)

	res, err := s.Upsert(testRecord("p1", 0.92, 15))
	require.NoError(t, err)

	assert.Equal(t, merge.OutcomeWeightedMerge, res.Outcome)
	assert.True(t, res.Changed)
	assert.InDelta(t, (0.88*8+0.92*15)/23.0, res.Confidence, 1e-10)

	got, err := s.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 23, got.AccessCount)
}

func TestUpsert_ContradictoryKeepsLocal(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Upsert(testRecord("p1", 0.95, 10))
	require.NoError(t, err)

	incoming := testRecord("p1", 0.10, 1)
	incoming.Context = map[string]string{"entirely": "different"}
	res, err := s.Upsert(incoming)
	require.NoError(t, err)

	assert.Equal(t, merge.OutcomeKeptLocal, res.Outcome)
	assert.False(t, res.Changed)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestUpsert_IdenticalIsStable(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	rec := testRecord("p1", 0.9, 5)
	_, err := s.Upsert(rec)
	require.NoError(t, err)

	res, err := s.Upsert(rec)
	require.NoError(t, err)
	assert.Equal(t, merge.OutcomeKeptHigherConfidence, res.Outcome)
	assert.False(t, res.Changed, "re-upserting an identical record changes nothing")
}

func TestQueryByNamespace_OrderingAndScope(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	insert := func(id string, confidence float64, access int, ns string) {
		rec := testRecord(id, confidence, access)
		rec.Namespaces = []string{ns}
		_, err := s.Upsert(rec)
		require.NoError(t, err)
	}

	insert("b", 0.9, 3, "workspace.demo")
	insert("a", 0.9, 3, "workspace.demo")
	insert("c", 0.9, 7, "workspace.demo")
	insert("d", 0.95, 1, "workspace.other")
	insert("e", 0.99, 9, "core.store")

	got := s.QueryByNamespace("workspace")
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	// Confidence desc, then access count desc, then id asc.
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids)

	assert.Len(t, s.QueryByNamespace("workspace.demo"), 3)
	assert.Empty(t, s.QueryByNamespace("work"), "prefix matching is segment-aware")
	assert.Len(t, s.QueryByNamespace(""), 5)
}

func TestRecordUsage_AsymmetricUpdate(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Upsert(testRecord("p1", 0.50, 0))
	require.NoError(t, err)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordUsage("p1", true, now))
	got, err := s.Get("p1")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, got.Confidence, 1e-12)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, now, got.LastAccessed)

	require.NoError(t, s.RecordUsage("p1", false, now.Add(time.Hour)))
	got, err = s.Get("p1")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, got.Confidence, 1e-12)
	assert.Equal(t, 1, got.AccessCount, "failures do not count as applications")

	assert.ErrorIs(t, s.RecordUsage("missing", true, now), ErrNotFound)
}

func TestRecordUsage_ConfidenceStaysClamped(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Upsert(testRecord("p1", 0.97, 0))
	require.NoError(t, err)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Any sequence of usage updates keeps confidence within [0, 1].
	for i := 0; i < 30; i++ {
		require.NoError(t, s.RecordUsage("p1", true, now))
		got, err := s.Get("p1")
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
	got, err := s.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)

	for i := 0; i < 30; i++ {
		require.NoError(t, s.RecordUsage("p1", false, now))
		got, err := s.Get("p1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
	}
	got, err = s.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestDecayStale(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	stale := testRecord("stale", 0.6, 1)
	stale.LastAccessed = now.Add(-120 * 24 * time.Hour)
	stale.CreatedAt = stale.LastAccessed
	_, err := s.Upsert(stale)
	require.NoError(t, err)

	dying := testRecord("dying", 0.21, 1)
	dying.LastAccessed = now.Add(-120 * 24 * time.Hour)
	dying.CreatedAt = dying.LastAccessed
	_, err = s.Upsert(dying)
	require.NoError(t, err)

	fresh := testRecord("fresh", 0.6, 1)
	fresh.LastAccessed = now.Add(-time.Hour)
	fresh.CreatedAt = now.Add(-2 * time.Hour)
	_, err = s.Upsert(fresh)
	require.NoError(t, err)

	affected := s.DecayStale(now, DefaultDecayOptions())
	assert.Equal(t, []string{"dying", "stale"}, affected, "affected ids are sorted")

	got, err := s.Get("stale")
	require.NoError(t, err)
	assert.InDelta(t, 0.54, got.Confidence, 1e-12)
	assert.Equal(t, pattern.StatusActive, got.Status)

	got, err = s.Get("dying")
	require.NoError(t, err)
	assert.InDelta(t, 0.189, got.Confidence, 1e-12)
	assert.Equal(t, pattern.StatusMarkedForRemoval, got.Status, "flagged, never deleted")

	got, err = s.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Confidence, "recently used records are untouched")

	assert.Equal(t, 3, s.Len(), "decay is never destructive by itself")
}

func TestDecayStale_NeverIncreases(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	rec := testRecord("p1", 0.8, 1)
	rec.CreatedAt = now.Add(-200 * 24 * time.Hour)
	rec.LastAccessed = rec.CreatedAt
	_, err := s.Upsert(rec)
	require.NoError(t, err)

	prev := 0.8
	for i := 0; i < 10; i++ {
		s.DecayStale(now, DefaultDecayOptions())
		got, err := s.Get("p1")
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Confidence, prev)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		prev = got.Confidence
	}
}

func TestRemove_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Upsert(testRecord("p1", 0.5, 0))
	require.NoError(t, err)

	s.Remove("p1")
	assert.Equal(t, 0, s.Len())
	s.Remove("p1") // no error, no panic
	s.Remove("never-existed")
}

func TestSnapshot_SortedClones(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.Upsert(testRecord(id, 0.5, 0))
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, "c", snap[2].ID)

	snap[0].Confidence = 0.0
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Confidence, "snapshot mutation must not reach the store")
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
