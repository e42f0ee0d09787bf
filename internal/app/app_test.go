package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/database"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBType:              "sqlite-pure",
		DBDatabase:          filepath.Join(t.TempDir(), "content.db"),
		LockBackend:         config.LockBackendDatabase,
		LockTTL:             time.Minute,
		LockMaxTTL:          10 * time.Minute,
		RequireLock:         true,
		HistoryRetention:    10,
		RedisChangesChannel: "contentdb:changes",
	}
}

func TestNewWithRedis(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + s.Addr()
	cfg.LockBackend = config.LockBackendRedis

	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, database.AutoMigrate(a.DB))

	// events published by the engine reach subscribers
	listener := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = listener.Close() })
	sub := listener.Subscribe(context.Background(), cfg.RedisChangesChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	actor := services.Actor{UserID: "alice", SessionID: "tab"}
	_, err = a.Store.Create(ctx, "home", nil, actor)
	require.NoError(t, err)
	_, err = a.Locks.Acquire(ctx, "home", actor, 0)
	require.NoError(t, err)
	assert.True(t, s.Exists("contentdb:lock:home"))

	res, err := a.Engine.UpdateContent(ctx, "home", 1, nil, "", actor)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.NewVersion)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"pageId":"home"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event published")
	}

	health := a.Health.Check(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Redis)
}

func TestNewRedisBackendNeedsRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.LockBackend = config.LockBackendRedis

	_, err := New(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestNewDatabaseBackend(t *testing.T) {
	a, err := New(testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, database.AutoMigrate(a.DB))

	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Sessions)

	result, err := a.Sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.LocksReaped)
}
