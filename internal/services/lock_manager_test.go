package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/contentdb/internal/locks"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockLifecycle(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	status, err := f.locks.Status(ctx, "home")
	require.NoError(t, err)
	assert.False(t, status.Locked)

	status, err = f.locks.Acquire(ctx, "home", alice, 0)
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, string(locks.OutcomeCreated), status.Outcome)
	assert.Equal(t, "alice", status.LockedBy)
	assert.WithinDuration(t, *status.LockedAt, *status.ExpiresAt, 5*time.Minute+time.Second)

	status, err = f.locks.Acquire(ctx, "home", alice, 0)
	require.NoError(t, err)
	assert.Equal(t, string(locks.OutcomeRenewed), status.Outcome)

	_, err = f.locks.Acquire(ctx, "home", bob, 0)
	ce := requireKind(t, err, KindLock)
	require.NotNil(t, ce.Holder)
	assert.Equal(t, "alice", ce.Holder.LockedBy)

	released, err := f.locks.Release(ctx, "home", bob)
	require.NoError(t, err)
	assert.False(t, released, "a non-holder release is a no-op")

	released, err = f.locks.Release(ctx, "home", alice)
	require.NoError(t, err)
	assert.True(t, released)

	status, err = f.locks.Status(ctx, "home")
	require.NoError(t, err)
	assert.False(t, status.Locked)

	released, err = f.locks.Release(ctx, "home", alice)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestLockTTLClamp(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	status, err := f.locks.Acquire(ctx, "home", alice, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, status.ExpiresAt.Sub(*status.LockedAt))
}

func TestLockRequiresSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.locks.Acquire(context.Background(), "home", Actor{UserID: "alice"}, 0)
	requireKind(t, err, KindValidation)
	_, err = f.locks.Acquire(context.Background(), "", alice, 0)
	requireKind(t, err, KindValidation)
}

func TestLockExpiredTakeover(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, "home", alice, time.Minute)
	require.NoError(t, err)

	later := utcNow().Add(2 * time.Minute)
	f.locks.now = func() time.Time { return later }

	status, err := f.locks.Status(ctx, "home")
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.True(t, status.Expired)

	status, err = f.locks.Acquire(ctx, "home", bob, 0)
	require.NoError(t, err)
	assert.Equal(t, string(locks.OutcomeStolen), status.Outcome)
	assert.Equal(t, "bob", status.LockedBy)

	// the read after the steal shows the new holder
	status, err = f.locks.Status(ctx, "home")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.False(t, status.Expired)
	assert.Equal(t, bob.UserID, status.LockedBy)
	assert.Equal(t, bob.SessionID, status.SessionID)
	assert.Empty(t, status.Outcome)

	_, err = f.locks.Acquire(ctx, "home", alice, 0)
	ce := requireKind(t, err, KindLock)
	require.NotNil(t, ce.Holder)
	assert.Equal(t, bob.UserID, ce.Holder.LockedBy)
}

func TestLockRenew(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.locks.Renew(ctx, "home", alice, 0)
	requireKind(t, err, KindNotFound)

	first, err := f.locks.Acquire(ctx, "home", alice, time.Minute)
	require.NoError(t, err)

	f.locks.now = func() time.Time { return first.LockedAt.Add(30 * time.Second) }
	renewed, err := f.locks.Renew(ctx, "home", alice, 0)
	require.NoError(t, err)
	assert.True(t, renewed.LockedAt.Equal(*first.LockedAt))
	assert.True(t, renewed.ExpiresAt.After(*first.ExpiresAt))

	_, err = f.locks.Renew(ctx, "home", bob, 0)
	requireKind(t, err, KindLock)
}

func TestLockReapExpired(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	for _, page := range []string{"p1", "p2"} {
		_, err := f.locks.Acquire(ctx, page, alice, time.Minute)
		require.NoError(t, err)
	}
	_, err := f.locks.Acquire(ctx, "p3", alice, 10*time.Minute)
	require.NoError(t, err)

	f.locks.now = func() time.Time { return utcNow().Add(5 * time.Minute) }

	n, err := f.locks.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.locks.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, err := f.locks.Status(ctx, "p3")
	require.NoError(t, err)
	assert.True(t, status.Locked)
}

func TestLockManagerRedisBackend(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := NewLockManager(locks.NewRedisStore(client), time.Minute, 10*time.Minute, logging.Discard())
	ctx := context.Background()

	_, err := m.Acquire(ctx, "home", alice, 0)
	require.NoError(t, err)
	require.NoError(t, m.RequireHolder(ctx, "home", alice))
	requireKind(t, m.RequireHolder(ctx, "home", bob), KindLock)

	released, err := m.Release(ctx, "home", alice)
	require.NoError(t, err)
	assert.True(t, released)
	requireKind(t, m.RequireHolder(ctx, "home", alice), KindLock)
}
