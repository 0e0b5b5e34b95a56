package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite3")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterSourceIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.RegisterSource(ctx, "yt-1", "Track One", 180_000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnclaimed, a.Status)

	b, err := s.RegisterSource(ctx, "yt-1", "Track One (dup call)", 180_000)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID, "second registration of the same external id returns the existing source")
}

func TestClaimNextTransitionsToPendingAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	short, _ := s.RegisterSource(ctx, "short", "s", 10_000)
	long, _ := s.RegisterSource(ctx, "long", "l", 500_000)

	claimed, err := s.ClaimNext(ctx, 10, Cursor{})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, long.ID, claimed[0].ID, "longer duration claimed first")
	assert.Equal(t, short.ID, claimed[1].ID)

	for _, c := range claimed {
		assert.Equal(t, model.StatusPending, c.Status)
	}

	again, err := s.ClaimNext(ctx, 10, Cursor{})
	require.NoError(t, err)
	assert.Empty(t, again, "already-pending sources are not reclaimed")
}

func TestInsertOccurrencesIsIdempotentAndMaintainsHashStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "yt-2", "Track Two", 60_000)
	require.NoError(t, err)

	rows := []model.Occurrence{
		{Hash: "aaaaaaaaaa", SourceID: src.ID, TRef: 1},
		{Hash: "aaaaaaaaaa", SourceID: src.ID, TRef: 2},
		{Hash: "bbbbbbbbbb", SourceID: src.ID, TRef: 1},
	}
	require.NoError(t, s.InsertOccurrences(ctx, src.ID, rows, 2))
	// Re-inserting the same rows must not duplicate or double-count.
	require.NoError(t, s.InsertOccurrences(ctx, src.ID, rows, 2))

	n, err := s.FingerprintCount(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var stat hashStatRow
	require.NoError(t, s.db.Where("hash = ?", "aaaaaaaaaa").First(&stat).Error)
	assert.Equal(t, int64(2), stat.TotalCount)
	assert.Equal(t, int64(1), stat.SourceCount)
}

func TestFindCandidatesRanksByMatchedCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	winner, err := s.RegisterSource(ctx, "winner", "w", 120_000)
	require.NoError(t, err)
	loser, err := s.RegisterSource(ctx, "loser", "lz", 120_000)
	require.NoError(t, err)

	// Each aligned occurrence carries its own hash: one hash value
	// contributes at most once to any (source, delta) bucket.
	var rows []model.Occurrence
	for i := uint32(0); i < 20; i++ {
		rows = append(rows, model.Occurrence{Hash: fmt.Sprintf("deadbe%04x", i), SourceID: winner.ID, TRef: 100 + i})
	}
	rows = append(rows, model.Occurrence{Hash: "deadbeef02", SourceID: loser.ID, TRef: 50})
	require.NoError(t, s.InsertOccurrences(ctx, winner.ID, rows, 100))

	query := make([]model.QueryHash, 0, 20)
	for i := uint32(0); i < 20; i++ {
		query = append(query, model.QueryHash{Hash: fmt.Sprintf("deadbe%04x", i), TRef: i})
	}
	query = append(query, model.QueryHash{Hash: "deadbeef02", TRef: 0})

	candidates, err := s.FindCandidates(ctx, query, SearchParams{
		IgnoreFraction:  0,
		MinMatches:      3,
		MaxHitsPerHash:  1000,
		LimitCandidates: 5,
		DeltaTolerance:  2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, winner.ID, candidates[0].SourceID)
	assert.Equal(t, 20, candidates[0].MatchedCount)
}

func TestFindCandidatesAppliesStopwordFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "stop", "s", 60_000)
	require.NoError(t, err)

	common, err := s.RegisterSource(ctx, "common-holder", "c", 60_000)
	require.NoError(t, err)

	// Make "commonhash0" occur many times (50 occurrences in one source)
	// so it ranks as a stop word by total_count, while "rarehash000"
	// occurs only once, against src.
	var rows []model.Occurrence
	for i := 0; i < 50; i++ {
		rows = append(rows, model.Occurrence{Hash: "commonhash0", SourceID: common.ID, TRef: uint32(i)})
	}
	rows = append(rows, model.Occurrence{Hash: "rarehash000", SourceID: src.ID, TRef: 0})
	require.NoError(t, s.InsertOccurrences(ctx, common.ID, rows[:50], 50))
	require.NoError(t, s.InsertOccurrences(ctx, src.ID, rows[50:], 1))

	query := []model.QueryHash{{Hash: "commonhash0", TRef: 0}, {Hash: "rarehash000", TRef: 0}}
	candidates, err := s.FindCandidates(ctx, query, SearchParams{
		IgnoreFraction:  0.5, // top half of distinct hashes are stop words
		MinMatches:      1,
		MaxHitsPerHash:  1000,
		LimitCandidates: 5,
		DeltaTolerance:  0,
	})
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, common.ID, c.SourceID, "the stop-word hash must not surface its source")
	}
}

func TestSetStatusIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "mono", "m", 30_000)
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, src.ID, model.StatusTooShort, nil))
	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTooShort, got.Status)

	// Attempting to move out of a terminal state is a silent no-op.
	require.NoError(t, s.SetStatus(ctx, src.ID, model.StatusMatched, nil))
	got, err = s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTooShort, got.Status)
}

func TestDeleteSourceCascadesOccurrencesAndHashStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "del", "d", 30_000)
	require.NoError(t, err)

	rows := []model.Occurrence{{Hash: "feedface01", SourceID: src.ID, TRef: 0}}
	require.NoError(t, s.InsertOccurrences(ctx, src.ID, rows, 10))

	require.NoError(t, s.DeleteSource(ctx, src.ID))

	_, err = s.GetSource(ctx, src.ID)
	assert.Error(t, err)

	var stat hashStatRow
	err = s.db.Where("hash = ?", "feedface01").First(&stat).Error
	assert.Error(t, err, "hash stat row is removed once its count reaches zero")
}
