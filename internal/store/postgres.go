package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sonicgen/sonicgen/internal/metrics"
	"github.com/sonicgen/sonicgen/internal/model"
	pkgerrors "github.com/sonicgen/sonicgen/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresStore is the production backend. Reads, migrations and the
// ClaimNext/status transitions go through GORM, same as SQLiteStore; the
// HashStat increment on the ingest hot path instead goes straight
// through a pgxpool connection as a single INSERT ... ON CONFLICT ...
// DO UPDATE, so concurrent ingest workers never race a read-modify-write
// on the same hash's counters.
type PostgresStore struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn with both GORM (for the ORM-shaped
// majority of the schema) and a pgxpool (for the one statement that
// needs a real atomic upsert), and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres via gorm: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{db: db, pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil {
		return nil
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

func (s *PostgresStore) RegisterSource(ctx context.Context, externalID, title string, durationMs int64) (*model.Source, error) {
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
		if isPostgresUniqueViolation(err) {
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

func (s *PostgresStore) ClaimNext(ctx context.Context, limit int, cursor Cursor) ([]model.Source, error) {
	var rows []sourceRow
	var claimed []model.Source
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ?", string(model.StatusUnclaimed))
		if cursor.Open {
			q = q.Where("(duration_ms < ?) OR (duration_ms = ? AND id < ?)", cursor.LastDurationMs, cursor.LastDurationMs, cursor.LastID)
		}
		// FOR UPDATE SKIP LOCKED lets concurrent claimers each take a
		// disjoint slice of the unclaimed queue without blocking on
		// one another.
		if err := q.Order("duration_ms DESC, id DESC").Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Find(&rows).Error; err != nil {
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
				continue
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

func (s *PostgresStore) InsertOccurrences(ctx context.Context, sourceID string, rows []model.Occurrence, chunkSize int) error {
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

// insertChunk inserts occurrences idempotently, one INSERT ... ON
// CONFLICT DO NOTHING per row inside one transaction, then for each row
// actually inserted (a conflicting no-op row reports zero rows affected),
// bumps the matching HashStat with a single atomic upsert. This is the one place the engine deliberately
// steps outside the ORM: GORM has no portable way to express "increment
// if exists, insert with count 1 if not" as one round trip, and a
// read-then-write here is exactly the race this store exists to avoid.
func (s *PostgresStore) insertChunk(ctx context.Context, chunk []model.Occurrence) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, occ := range chunk {
		tag, err := tx.Exec(ctx, `
			INSERT INTO occurrences (hash, source_id, t_ref)
			VALUES ($1, $2, $3)
			ON CONFLICT (hash, source_id, t_ref) DO NOTHING
		`, occ.Hash, occ.SourceID, occ.TRef)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			continue // already ingested this (hash, source, t_ref)
		}

		var firstForSource bool
		err = tx.QueryRow(ctx, `
			SELECT NOT EXISTS (
				SELECT 1 FROM occurrences
				WHERE hash = $1 AND source_id = $2 AND t_ref <> $3
			)
		`, occ.Hash, occ.SourceID, occ.TRef).Scan(&firstForSource)
		if err != nil {
			return err
		}

		var totalCount, sourceCount int64
		err = tx.QueryRow(ctx, `
			INSERT INTO hash_stats (hash, total_count, source_count)
			VALUES ($1, 1, 1)
			ON CONFLICT (hash) DO UPDATE SET
				total_count = hash_stats.total_count + 1,
				source_count = hash_stats.source_count + CASE WHEN $2 THEN 1 ELSE 0 END
			RETURNING total_count, source_count
		`, occ.Hash, firstForSource).Scan(&totalCount, &sourceCount)
		if err != nil {
			return err
		}
		if sourceCount > totalCount {
			// source_count (distinct contributing sources) can never
			// exceed total_count (all occurrences of this hash) — each
			// source contributes at least one occurrence to be counted.
			return pkgerrors.New(pkgerrors.KindDivergence, occ.SourceID, "bump_hash_stat",
				fmt.Errorf("hash %s: source_count %d exceeds total_count %d", occ.Hash, sourceCount, totalCount))
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) FindCandidates(ctx context.Context, query []model.QueryHash, params SearchParams) ([]model.Candidate, error) {
	return findCandidates(ctx, s.db, query, params)
}

func (s *PostgresStore) SetStatus(ctx context.Context, sourceID string, status model.Status, originalRef *string) error {
	var row sourceRow
	if err := s.db.WithContext(ctx).Where("id = ?", sourceID).First(&row).Error; err != nil {
		return fmt.Errorf("fetching source %s: %w", sourceID, err)
	}
	if model.Status(row.Status).Terminal() {
		return nil
	}
	updates := map[string]interface{}{"status": string(status)}
	if originalRef != nil {
		updates["original_ref"] = *originalRef
	}
	return s.db.WithContext(ctx).Model(&sourceRow{}).Where("id = ?", sourceID).Updates(updates).Error
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	var row sourceRow
	if err := s.db.WithContext(ctx).Where("id = ?", sourceID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("fetching source %s: %w", sourceID, err)
	}
	m := row.toModel()
	return &m, nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, sourceID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE hash_stats SET total_count = total_count - sub.cnt
		FROM (SELECT hash, COUNT(*) AS cnt FROM occurrences WHERE source_id = $1 GROUP BY hash) sub
		WHERE hash_stats.hash = sub.hash
	`, sourceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE hash_stats SET source_count = source_count - 1
		WHERE hash IN (SELECT DISTINCT hash FROM occurrences WHERE source_id = $1)
	`, sourceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM hash_stats WHERE total_count <= 0`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM occurrences WHERE source_id = $1`, sourceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sources WHERE id = $1`, sourceID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) FingerprintCount(ctx context.Context, sourceID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&occurrenceRow{}).Where("source_id = ?", sourceID).Count(&n).Error
	return int(n), err
}

// isPostgresUniqueViolation uses lib/pq's typed error, not string
// matching, to tell a real unique-constraint conflict (code 23505) apart
// from any other failure GORM's postgres driver might surface.
func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
