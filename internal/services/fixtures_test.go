package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/locks"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/notify"
	"github.com/localnerve/contentdb/internal/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	alice = Actor{UserID: "alice", SessionID: "alice-tab-1"}
	bob   = Actor{UserID: "bob", SessionID: "bob-tab-1"}
	mod   = Actor{UserID: "mona", SessionID: "mona-tab-1", Roles: []string{RoleModerator}}
)

// recorder captures change events
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fixture struct {
	db       *gorm.DB
	store    *ContentStore
	history  *HistoryLedger
	locks    *LockManager
	engine   *MutationEngine
	comments *CommentThreadManager
	notes    *recorder
}

type fixtureOptions struct {
	requireLock bool
	retention   int
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	log := logging.Discard()
	db := testsupport.OpenDB(t)
	history := NewHistoryLedger(db, opts.retention, log)
	store := NewContentStore(db, nil, history, log)
	lockManager := NewLockManager(locks.NewGormStore(db), 5*time.Minute, 30*time.Minute, log)
	notes := &recorder{}

	return &fixture{
		db:      db,
		store:   store,
		history: history,
		locks:   lockManager,
		engine: NewMutationEngine(MutationConfig{
			DB:          db,
			Store:       store,
			History:     history,
			Locks:       lockManager,
			Notifier:    notes,
			RequireLock: opts.requireLock,
			Log:         log,
		}),
		comments: NewCommentThreadManager(db, store, log),
		notes:    notes,
	}
}

func para(id, text string, children ...blocks.Block) blocks.Block {
	return blocks.Block{
		ID:         id,
		Type:       blocks.TypeParagraph,
		Properties: map[string]interface{}{"text": text},
		Children:   children,
	}
}

func ids(list []blocks.Block) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func (f *fixture) create(t *testing.T, pageID string, initial ...blocks.Block) {
	t.Helper()
	_, err := f.store.Create(context.Background(), pageID, initial, alice)
	require.NoError(t, err)
}

func (f *fixture) current(t *testing.T, pageID string) []blocks.Block {
	t.Helper()
	content, err := f.store.Get(context.Background(), pageID)
	require.NoError(t, err)
	list, err := content.Blocks.Blocks()
	require.NoError(t, err)
	return list
}

func requireKind(t *testing.T, err error, kind Kind) *ContentError {
	t.Helper()
	require.Error(t, err)
	var ce *ContentError
	require.True(t, errors.As(err, &ce), "expected ContentError, got %T: %v", err, err)
	require.Equal(t, kind, ce.Kind, "unexpected kind for %v", err)
	return ce
}
