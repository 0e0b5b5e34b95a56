package store

import (
	"time"

	"github.com/sonicgen/sonicgen/internal/model"
)

// sourceRow is the GORM row for model.Source. Unlike the teacher's Song
// table (auto-increment uint keyed, title+artist unique), sources are
// keyed by an opaque string ID (uuid) because the engine treats
// fingerprints and query results as pointing at an ID, never at a
// (title, artist) pair.
type sourceRow struct {
	ID          string `gorm:"primaryKey"`
	ExternalID  string `gorm:"uniqueIndex:idx_source_external"`
	Title       string
	DurationMs  int64
	OriginalRef *string
	Status      string `gorm:"index:idx_source_status"`
	CreatedAt   time.Time
}

func (sourceRow) TableName() string { return "sources" }

func (r sourceRow) toModel() model.Source {
	return model.Source{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Title:       r.Title,
		DurationMs:  r.DurationMs,
		OriginalRef: r.OriginalRef,
		Status:      model.Status(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

// occurrenceRow is the GORM row for model.Occurrence, the index's central
// fact table. Uniquely identified by (Hash, SourceID, TRef) — the
// compound unique index is what makes InsertOccurrences idempotent
// under retry.
type occurrenceRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	Hash     string `gorm:"uniqueIndex:idx_occurrence_unique,priority:1;index:idx_occurrence_hash,priority:1"`
	SourceID string `gorm:"uniqueIndex:idx_occurrence_unique,priority:2;index:idx_occurrence_source,priority:1"`
	TRef     uint32 `gorm:"uniqueIndex:idx_occurrence_unique,priority:3"`
}

func (occurrenceRow) TableName() string { return "occurrences" }

// hashStatRow is the GORM row for model.HashStat, the stop-word-filter
// source of truth. Maintained in lockstep with occurrenceRow inserts and
// deletes; never independently recomputed except by an offline repair
// tool (out of scope here).
type hashStatRow struct {
	Hash        string `gorm:"primaryKey"`
	TotalCount  int64
	SourceCount int64
}

func (hashStatRow) TableName() string { return "hash_stats" }

func allModels() []interface{} {
	return []interface{}{&sourceRow{}, &occurrenceRow{}, &hashStatRow{}}
}
