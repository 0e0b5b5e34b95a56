// Package lease adds a distributed, cross-process claim lease on top of
// the DB-level claim_next transition, using Redis SET NX PX semantics.
// It exists for the case where more than one worker *process* (not just
// goroutine within one process) runs against the same index: the DB
// transition is still what makes a claim exclusive, but the lease lets
// a reaper detect a crashed worker's abandoned claim without the engine
// itself auto-timing-out a pending Source (the spec's operator-driven
// reset stance — see internal/ingest for the claim path this layers
// onto).
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeldByOther is returned by Acquire when sourceID's lease is
// currently held by a different worker.
var ErrHeldByOther = errors.New("lease: held by another worker")

// Leases grants and renews per-Source leases backed by a Redis instance.
type Leases struct {
	client *redis.Client
	prefix string
}

// New connects to addr and returns a Leases. keyPrefix namespaces lease
// keys (e.g. "sonicgen:lease:") so the same Redis instance can be shared
// with unrelated uses.
func New(addr, keyPrefix string) *Leases {
	return &Leases{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: keyPrefix,
	}
}

func (l *Leases) key(sourceID string) string {
	return l.prefix + sourceID
}

// Acquire attempts to take the lease on sourceID for ttl, tagged with
// workerID so a later Release can verify it still owns the lease before
// deleting it. Returns ErrHeldByOther if another worker holds it.
func (l *Leases) Acquire(ctx context.Context, sourceID, workerID string, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key(sourceID), workerID, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring lease for %s: %w", sourceID, err)
	}
	if !ok {
		return ErrHeldByOther
	}
	return nil
}

// Renew extends the TTL on a lease this worker still holds. It is a
// no-op (returns ErrHeldByOther) if the key expired or was taken over by
// another worker in the meantime.
func (l *Leases) Renew(ctx context.Context, sourceID, workerID string, ttl time.Duration) error {
	held, err := l.client.Get(ctx, l.key(sourceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrHeldByOther
		}
		return fmt.Errorf("checking lease for %s: %w", sourceID, err)
	}
	if held != workerID {
		return ErrHeldByOther
	}
	return l.client.Expire(ctx, l.key(sourceID), ttl).Err()
}

// Release drops the lease on sourceID if workerID still holds it.
func (l *Leases) Release(ctx context.Context, sourceID, workerID string) error {
	held, err := l.client.Get(ctx, l.key(sourceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil // already expired or released
		}
		return fmt.Errorf("checking lease for %s: %w", sourceID, err)
	}
	if held != workerID {
		return nil // taken over by another worker; not ours to release
	}
	return l.client.Del(ctx, l.key(sourceID)).Err()
}

// Expired reports whether sourceID currently has no live lease — the
// signal an operator reset tool would use to decide a pending Source's
// claim was abandoned by a crashed worker.
func (l *Leases) Expired(ctx context.Context, sourceID string) (bool, error) {
	ttl, err := l.client.PTTL(ctx, l.key(sourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking lease ttl for %s: %w", sourceID, err)
	}
	return ttl <= 0, nil
}

// Close releases the underlying Redis connection pool.
func (l *Leases) Close() error {
	return l.client.Close()
}
