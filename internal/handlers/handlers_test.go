// handlers_test.go
//
// Versioned block content, edit leases and comment threads for wiki pages
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of contentdb.
// contentdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// contentdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with contentdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/locks"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/middleware"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type caller struct {
	user    string
	session string
	roles   string
}

var (
	alice = caller{user: "alice", session: "a-1"}
	bob   = caller{user: "bob", session: "b-1"}
	anon  = caller{}
)

// setupApp builds the full API over an in-memory database
func setupApp(t *testing.T, requireLock bool) *fiber.App {
	t.Helper()

	log := logging.Discard()
	db := testsupport.OpenDB(t)
	history := services.NewHistoryLedger(db, 0, log)
	store := services.NewContentStore(db, nil, history, log)
	lockManager := services.NewLockManager(locks.NewGormStore(db), 5*time.Minute, 30*time.Minute, log)
	engine := services.NewMutationEngine(services.MutationConfig{
		DB:          db,
		Store:       store,
		History:     history,
		Locks:       lockManager,
		RequireLock: requireLock,
		Log:         log,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	routes := &Routes{
		Content:  &ContentHandler{Store: store, Engine: engine, History: history},
		Locks:    &LockHandler{Locks: lockManager},
		Comments: &CommentHandler{Comments: services.NewCommentThreadManager(db, store, log)},
		Health:   &HealthHandler{Health: services.NewHealth(&config.Config{DBType: "sqlite"}, db, nil, log)},
	}
	routes.Register(app.Group("/api"), nil)
	app.Use(NotFound)
	return app
}

func call(t *testing.T, app *fiber.App, who caller, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.user != "" {
		req.Header.Set(middleware.HeaderUserID, who.user)
		req.Header.Set(middleware.HeaderSessionID, who.session)
		req.Header.Set(middleware.HeaderUserRoles, who.roles)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// arrays come back wrapped
		var list []interface{}
		require.NoError(t, json.Unmarshal(raw, &list))
		return map[string]interface{}{"items": list}
	}
	return out
}

func paragraph(id, text string) map[string]interface{} {
	return map[string]interface{}{"id": id, "type": "paragraph", "properties": map[string]interface{}{"text": text}}
}

func createPage(t *testing.T, app *fiber.App, pageID string, blocks ...map[string]interface{}) {
	t.Helper()
	if blocks == nil {
		blocks = []map[string]interface{}{}
	}
	status, body := call(t, app, alice, "POST", "/api/content", map[string]interface{}{"pageId": pageID, "blocks": blocks})
	require.Equal(t, fiber.StatusCreated, status, "%v", body)
}

func TestCreateAndGetContent(t *testing.T) {
	app := setupApp(t, false)
	createPage(t, app, "home", paragraph("b1", "hello"))

	status, body := call(t, app, anon, "GET", "/api/content/home", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["version"])
	blocks := body["blocks"].([]interface{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "b1", blocks[0].(map[string]interface{})["id"])

	status, body = call(t, app, alice, "POST", "/api/content", map[string]interface{}{"pageId": "home"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "conflict", body["type"])

	status, _ = call(t, app, anon, "GET", "/api/content/missing", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = call(t, app, anon, "POST", "/api/content", map[string]interface{}{"pageId": "x"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "content.authorization", body["type"])
}

func TestCreateContentDuplicateIDs(t *testing.T) {
	app := setupApp(t, false)

	status, body := call(t, app, alice, "POST", "/api/content", map[string]interface{}{
		"pageId": "home",
		"blocks": []interface{}{paragraph("b1", "x"), paragraph("b1", "y")},
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "duplicate_id", body["type"])
	assert.Equal(t, "b1", body["blockId"])
}

func TestVersionConflictScenario(t *testing.T) {
	app := setupApp(t, false)
	createPage(t, app, "P", paragraph("b1", "hello"))

	status, body := call(t, app, alice, "PUT", "/api/content/P/blocks/b1", map[string]interface{}{
		"block":           map[string]interface{}{"type": "paragraph", "properties": map[string]interface{}{"text": "hello world"}},
		"expectedVersion": 1,
	})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "2", body["newVersion"])
	assert.Equal(t, "update", body["changeType"])

	status, body = call(t, app, bob, "DELETE", "/api/content/P/blocks/b1?expectedVersion=1", nil)
	require.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, true, body["versionError"])
	assert.Equal(t, "2", body["currentVersion"])
	assert.Contains(t, body["message"], "E_VERSION")

	status, body = call(t, app, anon, "GET", "/api/content/P/history", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["items"], 2)

	// negative versions are refused instead of wrapping around
	status, body = call(t, app, bob, "DELETE", "/api/content/P/blocks/b1?expectedVersion=-1", nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["message"], "negative")

	status, body = call(t, app, bob, "DELETE", "/api/content/P/blocks/b1", map[string]interface{}{"expectedVersion": "-2"})
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["message"], "negative")
}

func TestBlockRoutes(t *testing.T) {
	app := setupApp(t, false)
	createPage(t, app, "home", paragraph("a", "one"))

	status, body := call(t, app, alice, "POST", "/api/content/home/blocks", map[string]interface{}{
		"block":           paragraph("b", "two"),
		"index":           0,
		"expectedVersion": "1",
	})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "block-add", body["changeType"])
	data := body["data"].([]interface{})
	assert.Equal(t, "b", data[0].(map[string]interface{})["id"])

	status, body = call(t, app, alice, "POST", "/api/content/home/blocks/b/move", map[string]interface{}{
		"parentId":        "a",
		"expectedVersion": 2,
	})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "block-reorder", body["changeType"])

	status, body = call(t, app, alice, "DELETE", "/api/content/home/blocks/a", map[string]interface{}{"expectedVersion": 3})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "4", body["newVersion"])
	assert.Empty(t, body["data"])

	status, body = call(t, app, alice, "POST", "/api/content/home/blocks", map[string]interface{}{"block": paragraph("c", "x")})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "addBlock", body["type"])
}

func TestReplaceAndRestore(t *testing.T) {
	app := setupApp(t, false)
	createPage(t, app, "home", paragraph("a", "one"), paragraph("b", "two"))

	status, body := call(t, app, alice, "PUT", "/api/content/home", map[string]interface{}{
		"blocks":          []interface{}{paragraph("b", "two"), paragraph("a", "one")},
		"expectedVersion": 1,
	})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "block-reorder", body["changeType"])

	status, body = call(t, app, anon, "GET", "/api/content/home/history/1", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "create", body["changeType"])

	status, body = call(t, app, alice, "POST", "/api/content/home/history/1/restore", map[string]interface{}{"expectedVersion": 2})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "3", body["newVersion"])
	assert.Equal(t, "restore", body["changeType"])

	status, _ = call(t, app, anon, "GET", "/api/content/home/history/9", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = call(t, app, anon, "GET", "/api/content/home/history/x", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = call(t, app, anon, "GET", "/api/content/home/history?limit=-3", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLockRoutes(t *testing.T) {
	app := setupApp(t, true)
	createPage(t, app, "home", paragraph("a", "one"))

	edit := map[string]interface{}{"block": paragraph("b", "two"), "expectedVersion": 1}
	status, body := call(t, app, alice, "POST", "/api/content/home/blocks", edit)
	require.Equal(t, fiber.StatusLocked, status)
	assert.Equal(t, "lock", body["type"])

	status, body = call(t, app, alice, "POST", "/api/locks", map[string]interface{}{"pageId": "home", "ttlSeconds": 60})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, "created", body["outcome"])

	status, body = call(t, app, bob, "POST", "/api/locks", map[string]interface{}{"pageId": "home"})
	require.Equal(t, fiber.StatusLocked, status)
	holder := body["holder"].(map[string]interface{})
	assert.Equal(t, "alice", holder["lockedBy"])
	assert.Equal(t, "a-1", holder["sessionId"])

	status, body = call(t, app, bob, "POST", "/api/content/home/blocks", edit)
	require.Equal(t, fiber.StatusLocked, status)
	assert.NotNil(t, body["holder"])

	status, body = call(t, app, alice, "POST", "/api/content/home/blocks", edit)
	require.Equal(t, fiber.StatusOK, status, "%v", body)

	status, body = call(t, app, alice, "POST", "/api/locks/renew", map[string]interface{}{"pageId": "home"})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "renewed", body["outcome"])

	status, body = call(t, app, bob, "DELETE", "/api/locks?pageId=home", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["released"])

	status, body = call(t, app, alice, "DELETE", "/api/locks", map[string]interface{}{"pageId": "home"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["released"])

	status, body = call(t, app, anon, "GET", "/api/locks/home", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["locked"])

	status, _ = call(t, app, caller{user: "carol"}, "POST", "/api/locks", map[string]interface{}{"pageId": "home"})
	assert.Equal(t, fiber.StatusBadRequest, status, "a session id is required")
}

func TestLockTTLIsClamped(t *testing.T) {
	assert.Equal(t, time.Duration(0), LockRequest{TTLSeconds: -5}.ttl())
	assert.Equal(t, 90*time.Second, LockRequest{TTLSeconds: 90}.ttl())
	huge := LockRequest{TTLSeconds: math.MaxInt64}.ttl()
	assert.Greater(t, huge, time.Duration(0), "no overflow into a negative duration")

	app := setupApp(t, true)
	createPage(t, app, "home", paragraph("a", "one"))

	before := time.Now().UTC()
	status, body := call(t, app, alice, "POST", "/api/locks", map[string]interface{}{"pageId": "home", "ttlSeconds": int64(math.MaxInt64)})
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, true, body["locked"])

	expiresAt, err := time.Parse(time.RFC3339Nano, body["expiresAt"].(string))
	require.NoError(t, err)
	assert.True(t, expiresAt.After(before), "lease is not already expired")
	assert.False(t, expiresAt.After(time.Now().UTC().Add(30*time.Minute)), "lease is capped at the configured maximum")
}

func TestCommentRoutes(t *testing.T) {
	app := setupApp(t, false)
	createPage(t, app, "P", paragraph("b1", "hello"))

	status, root := call(t, app, alice, "POST", "/api/comments", map[string]interface{}{
		"pageId": "P", "blockId": "b1", "content": "nice point", "mentions": "bob",
	})
	require.Equal(t, fiber.StatusCreated, status, "%v", root)
	rootID := root["id"].(string)
	assert.Nil(t, root["resolvedAt"])
	assert.Len(t, root["mentions"], 1)

	status, reply := call(t, app, bob, "POST", "/api/comments", map[string]interface{}{
		"pageId": "P", "parentId": rootID, "content": "agreed",
	})
	require.Equal(t, fiber.StatusCreated, status, "%v", reply)
	assert.Equal(t, "b1", reply["blockId"])

	status, body := call(t, app, bob, "POST", "/api/comments", map[string]interface{}{
		"pageId": "P", "parentId": reply["id"], "content": "nested",
	})
	assert.Equal(t, fiber.StatusBadRequest, status, "%v", body)

	status, body = call(t, app, bob, "POST", "/api/comments/"+rootID+"/resolve", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "bob", body["resolvedBy"])

	status, body = call(t, app, anon, "GET", "/api/comments/P/unresolved", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["items"])

	status, body = call(t, app, anon, "GET", "/api/comments/P/blocks/b1", nil)
	require.Equal(t, fiber.StatusOK, status)
	threads := body["items"].([]interface{})
	require.Len(t, threads, 1)
	assert.Len(t, threads[0].(map[string]interface{})["replies"], 1)

	status, _ = call(t, app, bob, "PUT", "/api/comments/"+rootID, map[string]interface{}{"content": "edited"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = call(t, app, alice, "PUT", "/api/comments/"+rootID, map[string]interface{}{"content": "edited", "mentions": []string{}})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "edited", body["content"])
	assert.Empty(t, body["mentions"])

	status, _ = call(t, app, bob, "DELETE", "/api/comments/"+rootID, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = call(t, app, caller{user: "mona", roles: "moderator"}, "DELETE", "/api/comments/"+rootID, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body = call(t, app, anon, "GET", "/api/comments/P", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["items"])
}

func TestHealthAndNotFound(t *testing.T) {
	app := setupApp(t, false)

	status, body := call(t, app, anon, "GET", "/api/health", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])

	status, body = call(t, app, anon, "GET", "/nowhere", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["ok"])
}
