package services

import (
	"context"
	"errors"
	"testing"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/models"
	"github.com/localnerve/contentdb/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDirectory map[string]bool

func (d fixedDirectory) Exists(_ context.Context, pageID string) (bool, error) {
	return d[pageID], nil
}

type brokenDirectory struct{}

func (brokenDirectory) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestCreateContent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	content, err := f.store.Create(ctx, "home", []blocks.Block{para("a", "hello", para("a1", "nested"))}, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), content.Version)
	assert.Equal(t, "alice", content.CreatedBy)
	assert.Equal(t, "alice", content.UpdatedBy)

	got := f.current(t, "home")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Children[0].ParentID)

	entries, err := f.history.List(ctx, "home", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Version)
	assert.Equal(t, models.ChangeCreate, entries[0].ChangeType)
}

func TestCreateContentEmpty(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	content, err := f.store.Create(context.Background(), "blank", nil, alice)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(content.Blocks.JSON))
	assert.Empty(t, f.current(t, "blank"))
}

func TestCreateContentTwiceConflicts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.create(t, "home", para("a", "one"))

	_, err := f.store.Create(context.Background(), "home", nil, bob)
	requireKind(t, err, KindConflict)

	content, err := f.store.Get(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), content.Version)
	assert.Equal(t, "alice", content.CreatedBy)
}

func TestCreateContentRejectsInvalidTree(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	ce := requireKindOf(t, func() error {
		_, err := f.store.Create(ctx, "home", []blocks.Block{para("a", "x"), para("a", "y")}, alice)
		return err
	}, KindDuplicateID)
	assert.Equal(t, "a", ce.BlockID)

	requireKindOf(t, func() error {
		_, err := f.store.Create(ctx, "home", []blocks.Block{{ID: "b", Type: "marquee"}}, alice)
		return err
	}, KindValidation)

	_, err := f.store.Get(ctx, "home")
	requireKind(t, err, KindNotFound)
}

func TestCreateContentChecksPageDirectory(t *testing.T) {
	db := testsupport.OpenDB(t)
	log := logging.Discard()
	history := NewHistoryLedger(db, 0, log)
	ctx := context.Background()

	store := NewContentStore(db, fixedDirectory{"known": true}, history, log)
	_, err := store.Create(ctx, "known", nil, alice)
	require.NoError(t, err)
	_, err = store.Create(ctx, "unknown", nil, alice)
	requireKind(t, err, KindNotFound)

	store = NewContentStore(db, brokenDirectory{}, history, log)
	_, err = store.Create(ctx, "other", nil, alice)
	requireKind(t, err, KindStorage)
}

func TestGetContentValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.store.Get(ctx, "")
	requireKind(t, err, KindValidation)

	long := make([]byte, maxPageIDLength+1)
	for i := range long {
		long[i] = 'p'
	}
	_, err = f.store.Get(ctx, string(long))
	requireKind(t, err, KindValidation)

	_, err = f.store.Get(ctx, "missing")
	requireKind(t, err, KindNotFound)
}

func TestCompareAndSwapStaleVersion(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.create(t, "home", para("a", "one"))

	tree, err := models.NewBlockTree([]blocks.Block{para("b", "two")})
	require.NoError(t, err)

	v, err := f.store.compareAndSwap(f.db, "home", 1, tree, "bob", utcNow())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	_, err = f.store.compareAndSwap(f.db, "home", 1, tree, "bob", utcNow())
	ce := requireKind(t, err, KindVersion)
	assert.Equal(t, uint64(2), ce.CurrentVersion)
	assert.Contains(t, ce.Error(), "E_VERSION")
}

func requireKindOf(t *testing.T, fn func() error, kind Kind) *ContentError {
	t.Helper()
	return requireKind(t, fn(), kind)
}
