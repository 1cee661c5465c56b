package concurrency

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, ttl time.Duration) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunLock(client, "test:lock", ttl, nil), srv
}

func TestRunLockExcludesSecondHolder(t *testing.T) {
	lock, srv := newTestLock(t, time.Minute)

	release, ok, err := lock.Acquire(testContext(t), "dialer")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(testContext(t), "dialer")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(testContext(t)))
	require.NoError(t, release(testContext(t)))
	assert.False(t, srv.Exists("test:lock:dialer"))

	release, ok, err = lock.Acquire(testContext(t), "dialer")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, release(testContext(t)))
}

func TestRunLockRenewsWhileHeld(t *testing.T) {
	ttl := 600 * time.Millisecond
	lock, srv := newTestLock(t, ttl)

	release, ok, err := lock.Acquire(testContext(t), "dialer")
	require.NoError(t, err)
	require.True(t, ok)

	// Let most of the TTL pass; the key would expire without renewal.
	srv.FastForward(400 * time.Millisecond)
	require.Eventually(t, func() bool {
		return srv.TTL("test:lock:dialer") == ttl
	}, 2*time.Second, 20*time.Millisecond)

	srv.FastForward(400 * time.Millisecond)
	require.Eventually(t, func() bool {
		return srv.TTL("test:lock:dialer") == ttl
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, srv.Exists("test:lock:dialer"))

	require.NoError(t, release(testContext(t)))
	time.Sleep(ttl / 2)
	assert.False(t, srv.Exists("test:lock:dialer"))
}

func TestRunLockReleaseKeepsForeignHolder(t *testing.T) {
	lock, srv := newTestLock(t, 300*time.Millisecond)

	release, ok, err := lock.Acquire(testContext(t), "reconciler")
	require.NoError(t, err)
	require.True(t, ok)

	// Another process took over after expiry.
	require.NoError(t, srv.Set("test:lock:reconciler", "other"))
	time.Sleep(250 * time.Millisecond)

	require.NoError(t, release(testContext(t)))
	got, err := srv.Get("test:lock:reconciler")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestRunLockWithoutClientAlwaysSucceeds(t *testing.T) {
	var lock *RunLock
	release, ok, err := lock.Acquire(testContext(t), "dialer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release(testContext(t)))
}
