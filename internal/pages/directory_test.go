package pages

import (
	"context"
	"net"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPageService(t *testing.T) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Head("/pages/:id", func(c *fiber.Ctx) error {
		switch c.Params("id") {
		case "known":
			return c.SendStatus(fiber.StatusOK)
		case "broken":
			return c.SendStatus(fiber.StatusBadGateway)
		}
		return c.SendStatus(fiber.StatusNotFound)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestHTTPDirectory(t *testing.T) {
	dir := NewHTTPDirectory(startPageService(t) + "/")
	ctx := context.Background()

	ok, err := dir.Exists(ctx, "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = dir.Exists(ctx, "broken")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPDirectoryUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewHTTPDirectory("http://"+addr).Exists(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAllowAll(t *testing.T) {
	ok, err := AllowAll{}.Exists(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}
