package search

import (
	"context"
	"testing"

	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	candidates []model.Candidate
	gotParams  store.SearchParams
}

func (f *fakeSearcher) FindCandidates(ctx context.Context, query []model.QueryHash, params store.SearchParams) ([]model.Candidate, error) {
	f.gotParams = params
	return f.candidates, nil
}

func TestMatchReportsMatchAboveThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.MatchThreshold = 0.10
	cfg.SampleRate = 22050
	cfg.HopSize = 512

	fake := &fakeSearcher{candidates: []model.Candidate{
		{SourceID: "src-1", Delta: 43, MatchedCount: 20},
	}}
	query := make([]model.QueryHash, 100)

	decision, err := Match(context.Background(), fake, query, cfg)
	require.NoError(t, err)
	assert.True(t, decision.Matched)
	assert.Equal(t, "src-1", decision.SourceID)
	assert.InDelta(t, 0.2, decision.Score, 1e-9)
	assert.Equal(t, int64(43)*512*1000/22050, decision.OffsetMs)
}

func TestMatchReportsNoMatchBelowThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.MatchThreshold = 0.5

	fake := &fakeSearcher{candidates: []model.Candidate{
		{SourceID: "src-1", Delta: 1, MatchedCount: 3},
	}}
	query := make([]model.QueryHash, 100)

	decision, err := Match(context.Background(), fake, query, cfg)
	require.NoError(t, err)
	assert.False(t, decision.Matched)
	assert.Equal(t, "", decision.SourceID)
}

func TestMatchNoCandidatesIsNoMatch(t *testing.T) {
	cfg := config.Default()
	fake := &fakeSearcher{}
	query := make([]model.QueryHash, 100)

	decision, err := Match(context.Background(), fake, query, cfg)
	require.NoError(t, err)
	assert.False(t, decision.Matched)
}

func TestMatchPassesConfigParamsThrough(t *testing.T) {
	cfg := config.Default()
	fake := &fakeSearcher{}

	_, err := Match(context.Background(), fake, make([]model.QueryHash, 10), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.IgnoreFraction, fake.gotParams.IgnoreFraction)
	assert.Equal(t, cfg.MinMatches, fake.gotParams.MinMatches)
	assert.Equal(t, cfg.LimitCandidates, fake.gotParams.LimitCandidates)
}
