package store

import (
	"context"
	"math"
	"sort"

	"github.com/sonicgen/sonicgen/internal/model"
	"gorm.io/gorm"
)

// findCandidates runs Candidate Search steps 1-7 against db. Both the
// SQLite and Postgres backends share this: the aggregation is plain Go
// over rows fetched with GORM, since none of the supported engines make
// a single SQL statement for delta-smoothing worth the dialect-specific
// SQL it would take.
func findCandidates(ctx context.Context, db *gorm.DB, query []model.QueryHash, params SearchParams) ([]model.Candidate, error) {
	if len(query) == 0 {
		return nil, nil
	}

	grouped := groupByHash(query)
	hashes := make([]string, 0, len(grouped))
	for h := range grouped {
		hashes = append(hashes, h)
	}

	stopwords, err := stopwordSet(ctx, db, params.IgnoreFraction)
	if err != nil {
		return nil, err
	}

	filtered := hashes[:0:0]
	for _, h := range hashes {
		if !stopwords[h] {
			filtered = append(filtered, h)
		}
	}

	type bucketKey struct {
		sourceID string
		delta    int64
	}
	counts := make(map[bucketKey]int)

	for _, h := range filtered {
		var rows []occurrenceRow
		q := db.WithContext(ctx).Where("hash = ?", h).Order("source_id ASC, t_ref ASC")
		if params.MaxHitsPerHash > 0 {
			q = q.Limit(params.MaxHitsPerHash)
		}
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}

		seen := make(map[bucketKey]bool)
		for _, tq := range grouped[h] {
			for _, r := range rows {
				key := bucketKey{sourceID: r.SourceID, delta: int64(r.TRef) - int64(tq)}
				if seen[key] {
					continue
				}
				seen[key] = true
				counts[key]++
			}
		}
	}

	// Step 5: pre-filter.
	type bucket struct {
		key   bucketKey
		count int
	}
	bySource := make(map[string][]bucket)
	for k, c := range counts {
		if c < params.MinMatches {
			continue
		}
		bySource[k.sourceID] = append(bySource[k.sourceID], bucket{key: k, count: c})
	}

	// Step 6: delta-smoothing, per source.
	candidates := make([]model.Candidate, 0, len(bySource))
	for sourceID, buckets := range bySource {
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].count != buckets[j].count {
				return buckets[i].count > buckets[j].count
			}
			return buckets[i].key.delta < buckets[j].key.delta
		})
		best := buckets[0]
		merged := 0
		for _, b := range buckets {
			if absInt64(b.key.delta-best.key.delta) <= int64(params.DeltaTolerance) {
				merged += b.count
			}
		}
		candidates = append(candidates, model.Candidate{
			SourceID:     sourceID,
			Delta:        best.key.delta,
			MatchedCount: merged,
		})
	}

	// Step 7: rank.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].MatchedCount != candidates[j].MatchedCount {
			return candidates[i].MatchedCount > candidates[j].MatchedCount
		}
		return candidates[i].SourceID < candidates[j].SourceID
	})
	if params.LimitCandidates > 0 && len(candidates) > params.LimitCandidates {
		candidates = candidates[:params.LimitCandidates]
	}

	return candidates, nil
}

// groupByHash collects the t_ref values a query associates with each
// distinct hash value, preserving duplicates (the same landmark hash may
// legitimately recur in one fingerprint list at different anchor times).
func groupByHash(query []model.QueryHash) map[string][]uint32 {
	out := make(map[string][]uint32, len(query))
	for _, q := range query {
		out[q.Hash] = append(out[q.Hash], q.TRef)
	}
	return out
}

// stopwordSet returns the set of the globally most common hashes, the
// top ceil(ignoreFraction * N) by total_count (ties broken by hash,
// ascending, for determinism), where N is the number of distinct hashes
// the index currently holds.
func stopwordSet(ctx context.Context, db *gorm.DB, ignoreFraction float64) (map[string]bool, error) {
	set := make(map[string]bool)
	if ignoreFraction <= 0 {
		return set, nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&hashStatRow{}).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return set, nil
	}

	k := int(math.Ceil(ignoreFraction * float64(n)))
	if k <= 0 {
		return set, nil
	}

	var rows []hashStatRow
	if err := db.WithContext(ctx).
		Order("total_count DESC, hash ASC").
		Limit(k).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		set[r.Hash] = true
	}
	return set, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
