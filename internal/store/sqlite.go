//go:build !js && !wasm

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	xerrors "github.com/mdobak/go-xerrors"
	"github.com/sonicgen/sonicgen/internal/metrics"
	"github.com/sonicgen/sonicgen/internal/model"
	pkgerrors "github.com/sonicgen/sonicgen/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore is the development/test backend: a single pure-Go SQLite
// file, no cgo, no external service. HashStat maintenance is a
// read-increment-write inside the same transaction as the occurrence
// insert — safe here because SQLite serializes writers onto one
// connection, which the production Postgres backend cannot rely on.
type SQLiteStore struct {
	db  *gorm.DB
	sql *sql.DB
}

// OpenSQLite opens (creating if absent) the SQLite file at path and
// migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// SQLite writers serialize regardless; keep the pool small so readers
	// don't pile up behind a writer holding the single write lock.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(allModels()...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{db: db, sql: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

func (s *SQLiteStore) RegisterSource(ctx context.Context, externalID, title string, durationMs int64) (*model.Source, error) {
	var row sourceRow
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&row).Error
	if err == nil {
		m := row.toModel()
		return &m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("querying existing source: %w", err)
	}

	row = sourceRow{
		ID:         newSourceID(),
		ExternalID: externalID,
		Title:      title,
		DurationMs: durationMs,
		Status:     string(model.StatusUnclaimed),
		CreatedAt:  now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			if fetchErr := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&row).Error; fetchErr != nil {
				return nil, fmt.Errorf("fetching source after constraint violation: %w", fetchErr)
			}
			m := row.toModel()
			return &m, nil
		}
		return nil, fmt.Errorf("creating source: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, limit int, cursor Cursor) ([]model.Source, error) {
	var rows []sourceRow
	q := s.db.WithContext(ctx).Where("status = ?", string(model.StatusUnclaimed))
	if cursor.Open {
		q = q.Where("(duration_ms < ?) OR (duration_ms = ? AND id < ?)", cursor.LastDurationMs, cursor.LastDurationMs, cursor.LastID)
	}
	q = q.Order("duration_ms DESC, id DESC").Limit(limit)

	var claimed []model.Source
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			res := tx.Model(&sourceRow{}).
				Where("id = ? AND status = ?", r.ID, string(model.StatusUnclaimed)).
				Update("status", string(model.StatusPending))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue // raced with another claimant; skip, not fatal
			}
			r.Status = string(model.StatusPending)
			claimed = append(claimed, r.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claiming sources: %w", err)
	}
	return claimed, nil
}

func (s *SQLiteStore) InsertOccurrences(ctx context.Context, sourceID string, rows []model.Occurrence, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunkStart := time.Now()
		err := s.insertChunk(ctx, rows[start:end])
		metrics.Get().IngestChunkDuration.Observe(time.Since(chunkStart).Seconds())
		if err != nil {
			return fmt.Errorf("inserting occurrence chunk for source %s: %w", sourceID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) insertChunk(ctx context.Context, chunk []model.Occurrence) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, occ := range chunk {
			row := occurrenceRow{Hash: occ.Hash, SourceID: occ.SourceID, TRef: occ.TRef}
			err := tx.Create(&row).Error
			if err != nil {
				if isUniqueViolation(err) {
					continue // idempotent: already ingested this (hash, source, t_ref)
				}
				return xerrors.New(err)
			}
			if err := bumpHashStat(tx, occ.Hash, occ.SourceID); err != nil {
				return err
			}
		}
		return nil
	})
}

// bumpHashStat increments total_count always and source_count only when
// the occurrence just inserted is the first one stored for (hash,
// sourceID): it counts the occurrence rows already present for that pair,
// the new row included, and bumps source_count when that count is 1.
func bumpHashStat(tx *gorm.DB, hash, sourceID string) error {
	var stat hashStatRow
	err := tx.Where("hash = ?", hash).First(&stat).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stat = hashStatRow{Hash: hash, TotalCount: 1, SourceCount: 1}
		return tx.Create(&stat).Error
	case err != nil:
		return xerrors.New(err)
	default:
		var sourceAlreadyCounted int64
		tx.Model(&occurrenceRow{}).
			Where("hash = ? AND source_id = ?", hash, sourceID).
			Count(&sourceAlreadyCounted)
		stat.TotalCount++
		if sourceAlreadyCounted <= 1 { // the row we just inserted is the first for this source
			stat.SourceCount++
		}
		if stat.SourceCount > stat.TotalCount {
			// source_count (distinct contributing sources) can never
			// exceed total_count (all occurrences of this hash) — each
			// source contributes at least one occurrence to be counted.
			return pkgerrors.New(pkgerrors.KindDivergence, sourceID, "bump_hash_stat",
				fmt.Errorf("hash %s: source_count %d exceeds total_count %d", hash, stat.SourceCount, stat.TotalCount))
		}
		return tx.Save(&stat).Error
	}
}

func (s *SQLiteStore) FindCandidates(ctx context.Context, query []model.QueryHash, params SearchParams) ([]model.Candidate, error) {
	return findCandidates(ctx, s.db, query, params)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, sourceID string, status model.Status, originalRef *string) error {
	var row sourceRow
	if err := s.db.WithContext(ctx).Where("id = ?", sourceID).First(&row).Error; err != nil {
		return fmt.Errorf("fetching source %s: %w", sourceID, err)
	}
	if model.Status(row.Status).Terminal() {
		return nil // monotonic: a terminal status is never revised
	}
	updates := map[string]interface{}{"status": string(status)}
	if originalRef != nil {
		updates["original_ref"] = *originalRef
	}
	return s.db.WithContext(ctx).Model(&sourceRow{}).Where("id = ?", sourceID).Updates(updates).Error
}

func (s *SQLiteStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	var row sourceRow
	if err := s.db.WithContext(ctx).Where("id = ?", sourceID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("fetching source %s: %w", sourceID, err)
	}
	m := row.toModel()
	return &m, nil
}

// hashCount pairs a distinct hash with how many occurrences sourceID
// contributed for it, the unit DeleteSource decrements HashStats by.
type hashCount struct {
	Hash  string
	Count int64
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, sourceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Computed once, up front, over the still-intact occurrences for
		// sourceID: each distinct hash decrements SourceCount exactly
		// once regardless of how many t_ref values that hash occurs at
		// within this source, and TotalCount by that hash's occurrence
		// count for this source.
		var counts []hashCount
		if err := tx.Model(&occurrenceRow{}).
			Select("hash, COUNT(*) AS count").
			Where("source_id = ?", sourceID).
			Group("hash").
			Find(&counts).Error; err != nil {
			return err
		}
		for _, hc := range counts {
			var stat hashStatRow
			if err := tx.Where("hash = ?", hc.Hash).First(&stat).Error; err != nil {
				continue
			}
			stat.TotalCount -= hc.Count
			stat.SourceCount--
			if stat.TotalCount <= 0 {
				tx.Delete(&hashStatRow{}, "hash = ?", hc.Hash)
			} else {
				tx.Save(&stat)
			}
		}
		if err := tx.Where("source_id = ?", sourceID).Delete(&occurrenceRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sourceRow{}, "id = ?", sourceID).Error
	})
}

func (s *SQLiteStore) FingerprintCount(ctx context.Context, sourceID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&occurrenceRow{}).Where("source_id = ?", sourceID).Count(&n).Error
	return int(n), err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
