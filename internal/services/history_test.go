package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryList(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.create(t, "home")
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		_, err := f.engine.AddBlock(ctx, "home", uint64(i), para(string(rune('A'+i)), "x"), "", -1, alice)
		require.NoError(t, err)
	}

	entries, err := f.history.List(ctx, "home", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultHistoryLimit)
	assert.Equal(t, uint64(31), entries[0].Version)

	entries, err = f.history.List(ctx, "home", 5)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, uint64(27), entries[4].Version)

	entries, err = f.history.List(ctx, "home", 10000)
	require.NoError(t, err)
	assert.Len(t, entries, 31)
	assert.NotEmpty(t, entries[30].ID)
}

func TestHistoryListUnknownPage(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.history.List(context.Background(), "ghost", 0)
	requireKind(t, err, KindNotFound)
}

func TestHistoryVersion(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.create(t, "home", para("a", "one"))
	ctx := context.Background()

	entry, err := f.history.Version(ctx, "home", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.ChangedBy)
	list, err := entry.Blocks.Blocks()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(list))

	_, err = f.history.Version(ctx, "home", 2)
	requireKind(t, err, KindNotFound)
}

func TestHistorySweepAll(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	for _, page := range []string{"p1", "p2", "p3"} {
		f.create(t, page)
	}
	for i := 1; i <= 6; i++ {
		_, err := f.engine.AddBlock(ctx, "p1", uint64(i), para(string(rune('a'+i)), "x"), "", -1, alice)
		require.NoError(t, err)
	}
	for i := 1; i <= 2; i++ {
		_, err := f.engine.AddBlock(ctx, "p2", uint64(i), para(string(rune('a'+i)), "x"), "", -1, alice)
		require.NoError(t, err)
	}

	// a ledger with a tighter window over the same tables
	h := NewHistoryLedger(f.db, 3, f.history.log)
	n, err := h.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	entries, err := h.List(ctx, "p1", MaxHistoryLimit)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(5), entries[2].Version)

	entries, err = h.List(ctx, "p2", MaxHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	n, err = h.SweepAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweeping is idempotent")
}

func TestHistorySweepDisabled(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.create(t, "home")

	n, err := f.history.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
