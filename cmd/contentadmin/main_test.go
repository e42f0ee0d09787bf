package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localnerve/contentdb/internal/app"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate restores every variable loadConfig may export
func isolate(t *testing.T) {
	for _, s := range settings {
		t.Setenv(s.env, os.Getenv(s.env))
		require.NoError(t, os.Unsetenv(s.env))
	}
}

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db-type", "sqlite-pure", "--db-database", dbPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateAndSchema(t *testing.T) {
	isolate(t)
	dbPath := filepath.Join(t.TempDir(), "admin.db")

	out, err := run(t, dbPath, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "(missing, run migrate)")

	out, err = run(t, dbPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = run(t, dbPath, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Table: page_contents ===")
	assert.Contains(t, out, "=== Table: content_history ===")
	assert.NotContains(t, out, "missing")
}

func TestHistoryLockAndSweep(t *testing.T) {
	isolate(t)
	dbPath := filepath.Join(t.TempDir(), "admin.db")
	_, err := run(t, dbPath, "migrate")
	require.NoError(t, err)

	// seed a page through the services
	a, err := app.New(&config.Config{
		DBType:           "sqlite-pure",
		DBDatabase:       dbPath,
		LockBackend:      config.LockBackendDatabase,
		LockTTL:          time.Minute,
		LockMaxTTL:       time.Minute,
		HistoryRetention: 1,
	}, logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()
	actor := services.Actor{UserID: "alice", SessionID: "tab"}
	_, err = a.Store.Create(ctx, "home", nil, actor)
	require.NoError(t, err)
	_, err = a.Locks.Acquire(ctx, "home", actor, 0)
	require.NoError(t, err)
	a.Close()

	out, err := run(t, dbPath, "history", "home")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "create")

	out, err = run(t, dbPath, "lock", "home")
	require.NoError(t, err)
	assert.Contains(t, out, "locked by alice (session tab)")

	out, err = run(t, dbPath, "sweep", "--history-retention", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "locks reaped: 0")

	_, err = run(t, dbPath, "history", "missing")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "file.db")
	cfgPath := filepath.Join(dir, "admin.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db_type: sqlite-pure\ndb_database: "+dbPath+"\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--log-level", "error", "migrate"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, dbPath)
}
