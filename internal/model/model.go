// Package model defines the engine's core entities: Source, Occurrence
// and HashStat, plus the small value types (Decision, Status) that flow
// between the pipeline stages. These are semantic types, not storage
// schemas — internal/store maps them onto concrete table rows.
package model

import "time"

// Status is a Source's lifecycle state. Transitions are monotonic:
// unclaimed -> pending -> one terminal state. Once terminal, a Status is
// never revised by the engine.
type Status string

const (
	StatusUnclaimed    Status = "unclaimed"
	StatusPending      Status = "pending"
	StatusFingerprinted Status = "fingerprinted"
	StatusMatched      Status = "matched"
	StatusTooShort     Status = "too_short"
	StatusFlagged      Status = "flagged"
)

// Terminal reports whether s is one of the lifecycle's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusFingerprinted, StatusMatched, StatusTooShort, StatusFlagged:
		return true
	default:
		return false
	}
}

// Source is one canonical audio asset, identified by an opaque ID and a
// unique external (YouTube) ID.
type Source struct {
	ID          string
	ExternalID  string
	Title       string
	DurationMs  int64
	OriginalRef *string // nil unless Status == StatusMatched
	Status      Status
	CreatedAt   time.Time
}

// Occurrence is one emission of a landmark hash at one time inside one
// Source. Uniquely identified by (Hash, SourceID, TRef).
type Occurrence struct {
	Hash     string // fixed-width hex, rendered by internal/landmark
	SourceID string
	TRef     uint32 // frame index of the anchor peak
}

// HashStat is the maintained aggregate for one hash: how many times it
// occurs across all sources, and in how many distinct sources.
type HashStat struct {
	Hash        string
	TotalCount  int64
	SourceCount int64
}

// Hit is one index-side match for a single query hash: the Occurrence
// that shares the hash, reduced to what Candidate Search needs.
type Hit struct {
	SourceID string
	TRef     uint32
}

// Candidate is one (source, delta) bucket surviving the server-side
// aggregation steps of Candidate Search (stop-word filter through rank).
type Candidate struct {
	SourceID     string
	Delta        int64
	MatchedCount int
}

// Decision is the client-side output of Candidate Search step 8.
type Decision struct {
	Matched   bool
	SourceID  string
	OffsetMs  int64
	Score     float64
}

// QueryHash is one entry of a query fingerprint list: a landmark hash
// paired with the frame index of its anchor in the query audio. A single
// tagged record type, not a generic key-value bag, per the design notes.
type QueryHash struct {
	Hash string
	TRef uint32
}
