// Package store is the index: the persistent home of Sources,
// Occurrences and HashStats, and the implementation of the four
// abstract index RPCs (claim_next, find_candidates, insert_occurrences,
// set_status) the rest of the engine is built against.
package store

import (
	"context"
	"time"

	"github.com/sonicgen/sonicgen/internal/model"
)

// Cursor is the keyset pagination token for ClaimNext: an open cursor
// (zero value) fetches from the head of the unclaimed queue, ordered
// duration_ms DESC, id DESC.
type Cursor struct {
	LastDurationMs int64
	LastID         string
	Open           bool
}

// SearchParams parameterizes FindCandidates (Candidate Search steps 1-7).
type SearchParams struct {
	IgnoreFraction  float64
	MinMatches      int
	MaxHitsPerHash  int
	LimitCandidates int
	DeltaTolerance  int
}

// Store is the persistence layer the engine depends on. Implementations
// must handle concurrent access safely — HashStat updates for
// overlapping hashes from concurrent workers must not lose updates.
type Store interface {
	// RegisterSource creates (or idempotently returns) the Source row for
	// externalID, in status unclaimed.
	RegisterSource(ctx context.Context, externalID, title string, durationMs int64) (*model.Source, error)

	// ClaimNext atomically transitions up to limit unclaimed Sources to
	// pending and returns them, ordered duration_ms DESC, id DESC,
	// strictly after cursor.
	ClaimNext(ctx context.Context, limit int, cursor Cursor) ([]model.Source, error)

	// InsertOccurrences idempotently persists rows for sourceID in chunks
	// of at most chunkSize, maintaining HashStats atomically with each
	// chunk. Returns a divergence error (pkg/errors KindDivergence) if an
	// inconsistency is detected rather than silently continuing.
	InsertOccurrences(ctx context.Context, sourceID string, rows []model.Occurrence, chunkSize int) error

	// FindCandidates implements Candidate Search steps 1-7 server-side:
	// stop-word filtering, probing, per-hash capping, bucketing,
	// pre-filtering and delta-smoothing, ranked and capped to
	// params.LimitCandidates. The caller (internal/search) applies step 8
	// (the threshold decision).
	FindCandidates(ctx context.Context, query []model.QueryHash, params SearchParams) ([]model.Candidate, error)

	// SetStatus applies a monotonic status transition. Implementations
	// must reject (or no-op) a transition out of a terminal status.
	SetStatus(ctx context.Context, sourceID string, status model.Status, originalRef *string) error

	// GetSource fetches a Source's metadata by id.
	GetSource(ctx context.Context, sourceID string) (*model.Source, error)

	// DeleteSource removes a Source and cascades its Occurrences,
	// decrementing HashStats symmetrically and removing any HashStat row
	// whose counts reach zero.
	DeleteSource(ctx context.Context, sourceID string) error

	// FingerprintCount returns the number of Occurrences stored for
	// sourceID.
	FingerprintCount(ctx context.Context, sourceID string) (int, error)

	// Close releases underlying connections.
	Close() error
}

// now is overridden in tests that need a fixed clock.
var now = time.Now
