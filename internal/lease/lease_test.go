package lease

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "127.0.0.1:6379"

// requireRedis skips the test unless a Redis instance is actually
// reachable at testAddr — these tests exercise the real wire protocol
// (go-redis has no fake client in this pack), so they run as an
// integration suite against a locally available Redis rather than
// asserting anything when one isn't running.
func requireRedis(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no redis reachable at %s, skipping: %v", testAddr, err)
	}
	conn.Close()
}

func TestKeyNamespacesBySourceID(t *testing.T) {
	l := New(testAddr, "sonicgen:lease:")
	assert.Equal(t, "sonicgen:lease:abc123", l.key("abc123"))
}

func TestAcquireRenewReleaseLifecycle(t *testing.T) {
	requireRedis(t)
	l := New(testAddr, "sonicgen:test:lease:")
	defer l.Close()
	ctx := context.Background()
	sourceID := "lease-test-source"
	defer l.client.Del(ctx, l.key(sourceID))

	require.NoError(t, l.Acquire(ctx, sourceID, "worker-a", time.Second))

	err := l.Acquire(ctx, sourceID, "worker-b", time.Second)
	assert.ErrorIs(t, err, ErrHeldByOther)

	require.NoError(t, l.Renew(ctx, sourceID, "worker-a", 2*time.Second))
	assert.ErrorIs(t, l.Renew(ctx, sourceID, "worker-b", time.Second), ErrHeldByOther)

	require.NoError(t, l.Release(ctx, sourceID, "worker-a"))

	expired, err := l.Expired(ctx, sourceID)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestAcquireAfterExpiryIsAllowed(t *testing.T) {
	requireRedis(t)
	l := New(testAddr, "sonicgen:test:lease:")
	defer l.Close()
	ctx := context.Background()
	sourceID := "lease-test-expiry"
	defer l.client.Del(ctx, l.key(sourceID))

	require.NoError(t, l.Acquire(ctx, sourceID, "worker-a", 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	expired, err := l.Expired(ctx, sourceID)
	require.NoError(t, err)
	assert.True(t, expired)

	assert.NoError(t, l.Acquire(ctx, sourceID, "worker-b", time.Second))
}
