//go:build integration

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/database"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(id, text string) blocks.Block {
	return blocks.Block{ID: id, Type: blocks.TypeParagraph, Properties: map[string]interface{}{"text": text}}
}

// Runs against MariaDB and Redis containers:
//
//	go test -tags integration ./internal/app/...
func TestMariaDBAndRedis(t *testing.T) {
	ctx := context.Background()
	tc, err := testsupport.StartContainers(ctx, t.Logf)
	require.NoError(t, err)
	t.Cleanup(func() { tc.Terminate(context.Background(), t.Logf) })

	cfg := tc.Config(&config.Config{
		LockBackend:         config.LockBackendRedis,
		LockTTL:             time.Minute,
		LockMaxTTL:          10 * time.Minute,
		RequireLock:         true,
		HistoryRetention:    5,
		RedisChangesChannel: "contentdb:changes",
	})

	a, err := New(cfg, logging.New("warn", "text", nil))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, database.AutoMigrate(a.DB))

	alice := services.Actor{UserID: "alice", SessionID: "tab-1"}
	bob := services.Actor{UserID: "bob", SessionID: "tab-2"}

	_, err = a.Store.Create(ctx, "integration", []blocks.Block{para("intro", "hello")}, alice)
	require.NoError(t, err)

	t.Run("lease contention", func(t *testing.T) {
		_, err := a.Locks.Acquire(ctx, "integration", alice, 0)
		require.NoError(t, err)

		_, err = a.Locks.Acquire(ctx, "integration", bob, 0)
		assert.True(t, services.IsKind(err, services.KindLock))

		_, err = a.Engine.UpdateBlock(ctx, "integration", 1, "intro",
			para("", "bob"), bob)
		assert.True(t, services.IsKind(err, services.KindLock))
	})

	t.Run("single writer wins a version", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = a.Engine.UpdateBlock(ctx, "integration", 1, "intro",
					para("", "edit"), alice)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			var ce *services.ContentError
			if assert.True(t, errors.As(err, &ce), "unexpected error: %v", err) {
				assert.Equal(t, services.KindVersion, ce.Kind)
				assert.Equal(t, uint64(2), ce.CurrentVersion, "losers see the committed version")
			}
		}
		assert.Equal(t, 1, wins)

		page, err := a.Store.Get(ctx, "integration")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), page.Version)
	})

	t.Run("history retention", func(t *testing.T) {
		version := uint64(2)
		for i := 0; i < 6; i++ {
			res, err := a.Engine.UpdateBlock(ctx, "integration", version, "intro",
				para("", "again"), alice)
			require.NoError(t, err)
			version = res.NewVersion
		}

		entries, err := a.History.List(ctx, "integration", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 5)
		assert.Equal(t, version, entries[0].Version)
	})
}
