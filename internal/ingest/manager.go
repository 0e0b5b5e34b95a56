// Package ingest is the Ingest Manager: the worker-facing API over
// internal/store for claiming Sources and persisting fingerprint
// batches, with the retry and duplicate-ingest policy layered on top of
// the Store's raw RPCs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/metrics"
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/store"
)

// ErrAlreadyIngested is returned by IngestFingerprints when the Source
// has already completed a full ingest (status fingerprinted or
// matched). Two fingerprint sets computed with different DSP parameters
// are not comparable hash-for-hash, so re-ingesting over an existing set
// would silently corrupt HashStat counts; callers that want fresh
// parameters must delete the Source first.
var ErrAlreadyIngested = errors.New("ingest: source already fingerprinted")

// Manager is the Ingest Manager. It holds no state beyond its Store and
// Config — all durable state lives in the index.
type Manager struct {
	store store.Store
	cfg   *config.Config
}

// New builds a Manager over s, reading chunk size and retry policy from
// cfg.
func New(s store.Store, cfg *config.Config) *Manager {
	return &Manager{store: s, cfg: cfg}
}

// ClaimNext claims up to limit unclaimed Sources, retrying transient
// index errors per the configured backoff.
func (m *Manager) ClaimNext(ctx context.Context, limit int, cursor store.Cursor) ([]model.Source, error) {
	start := time.Now()
	var claimed []model.Source
	err := withRetry(ctx, m.cfg.RetryMaxAttempts, m.cfg.RetryBaseDelay, func() error {
		var err error
		claimed, err = m.store.ClaimNext(ctx, limit, cursor)
		return classify(err)
	})
	metrics.Get().ClaimDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.Get().ClaimedTotal.Add(float64(len(claimed)))
	}
	return claimed, err
}

// IngestFingerprints persists fp for sourceID in chunks of
// cfg.InsertChunk, rejecting a second full ingest of an already
// fingerprinted or matched Source (Open Question: duplicate-Source
// rehash semantics).
func (m *Manager) IngestFingerprints(ctx context.Context, sourceID string, fp []model.QueryHash) error {
	src, err := m.store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("fetching source %s: %w", sourceID, err)
	}
	if src.Status == model.StatusFingerprinted || src.Status == model.StatusMatched {
		return ErrAlreadyIngested
	}

	rows := make([]model.Occurrence, len(fp))
	for i, h := range fp {
		rows[i] = model.Occurrence{Hash: h.Hash, SourceID: sourceID, TRef: h.TRef}
	}

	return withRetry(ctx, m.cfg.RetryMaxAttempts, m.cfg.RetryBaseDelay, func() error {
		return classify(m.store.InsertOccurrences(ctx, sourceID, rows, m.cfg.InsertChunk))
	})
}

// SetStatus applies a monotonic status transition via the Store.
func (m *Manager) SetStatus(ctx context.Context, sourceID string, status model.Status, originalRef *string) error {
	return withRetry(ctx, m.cfg.RetryMaxAttempts, m.cfg.RetryBaseDelay, func() error {
		return classify(m.store.SetStatus(ctx, sourceID, status, originalRef))
	})
}

// DeleteSource removes a Source and its Occurrences/HashStat
// contributions, restoring HashStat symmetry.
func (m *Manager) DeleteSource(ctx context.Context, sourceID string) error {
	return withRetry(ctx, m.cfg.RetryMaxAttempts, m.cfg.RetryBaseDelay, func() error {
		return classify(m.store.DeleteSource(ctx, sourceID))
	})
}
