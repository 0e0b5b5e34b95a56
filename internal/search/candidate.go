// Package search is the client side of Candidate Search: it builds the
// query's fingerprint list into the shape internal/store.FindCandidates
// expects, and applies the final threshold decision (step 8) over the
// ranked, aggregated candidates the store hands back.
package search

import (
	"context"

	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/store"
)

// Searcher is the subset of internal/store.Store Candidate Search needs,
// kept narrow so this package never depends on the rest of the Store
// interface (claiming, ingest) it has no business calling.
type Searcher interface {
	FindCandidates(ctx context.Context, query []model.QueryHash, params store.SearchParams) ([]model.Candidate, error)
}

func paramsFromConfig(cfg *config.Config) store.SearchParams {
	return store.SearchParams{
		IgnoreFraction:  cfg.IgnoreFraction,
		MinMatches:      cfg.MinMatches,
		MaxHitsPerHash:  cfg.MaxHitsPerHash,
		LimitCandidates: cfg.LimitCandidates,
		DeltaTolerance:  cfg.DeltaTolerance,
	}
}

// Match runs Candidate Search to completion: query hash list in,
// model.Decision out. cfg supplies match_threshold, HOP and SR for the
// offset_ms conversion in step 8.
func Match(ctx context.Context, searcher Searcher, query []model.QueryHash, cfg *config.Config) (model.Decision, error) {
	candidates, err := searcher.FindCandidates(ctx, query, paramsFromConfig(cfg))
	if err != nil {
		return model.Decision{}, err
	}
	return decide(candidates, len(query), cfg), nil
}

// decide implements Candidate Search step 8: the top candidate matches
// iff its merged count is at least match_threshold of the query's size.
func decide(candidates []model.Candidate, queryLen int, cfg *config.Config) model.Decision {
	if len(candidates) == 0 || queryLen == 0 {
		return model.Decision{Matched: false}
	}

	best := candidates[0]
	score := float64(best.MatchedCount) / float64(queryLen)
	if score < cfg.MatchThreshold {
		return model.Decision{Matched: false, Score: score}
	}

	offsetMs := best.Delta * int64(cfg.HopSize) * 1000 / int64(cfg.SampleRate)
	return model.Decision{
		Matched:  true,
		SourceID: best.SourceID,
		OffsetMs: offsetMs,
		Score:    score,
	}
}
