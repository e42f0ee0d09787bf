package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/middleware"
	"github.com/localnerve/contentdb/internal/types"
	"github.com/sirupsen/logrus"
)

// Routes bundles the handlers mounted under /api
type Routes struct {
	Content  *ContentHandler
	Locks    *LockHandler
	Comments *CommentHandler
	Health   *HealthHandler
}

// Register mounts every route on api. Reads are public; writes need an
// identified caller.
func (r *Routes) Register(api fiber.Router, validator middleware.SessionValidator) {
	api.Use(middleware.VersionMiddleware())
	api.Use(middleware.Identify(validator))
	user := middleware.RequireUser()

	if r.Health != nil {
		api.Get("/health", r.Health.GetHealth)
	}

	content := api.Group("/content")
	content.Post("/", user, r.Content.CreateContent)
	content.Get("/:pageId", r.Content.GetContent)
	content.Put("/:pageId", user, r.Content.UpdateContent)
	content.Post("/:pageId/blocks", user, r.Content.AddBlock)
	content.Put("/:pageId/blocks/:blockId", user, r.Content.UpdateBlock)
	content.Delete("/:pageId/blocks/:blockId", user, r.Content.DeleteBlock)
	content.Post("/:pageId/blocks/:blockId/move", user, r.Content.MoveBlock)
	content.Get("/:pageId/history", r.Content.GetHistory)
	content.Get("/:pageId/history/:version", r.Content.GetVersion)
	content.Post("/:pageId/history/:version/restore", user, r.Content.RestoreVersion)

	locks := api.Group("/locks")
	locks.Post("/", user, r.Locks.AcquireLock)
	locks.Post("/renew", user, r.Locks.RenewLock)
	locks.Delete("/", user, r.Locks.ReleaseLock)
	locks.Get("/:pageId", r.Locks.GetLockStatus)

	comments := api.Group("/comments")
	comments.Post("/", user, r.Comments.AddComment)
	comments.Get("/:pageId", r.Comments.GetPageComments)
	comments.Get("/:pageId/unresolved", r.Comments.GetUnresolvedComments)
	comments.Get("/:pageId/blocks/:blockId", r.Comments.GetBlockComments)
	comments.Put("/:commentId", user, r.Comments.UpdateComment)
	comments.Delete("/:commentId", user, r.Comments.DeleteComment)
	comments.Post("/:commentId/resolve", user, r.Comments.ResolveComment)
	comments.Post("/:commentId/unresolve", user, r.Comments.UnresolveComment)
}

// ErrorHandler renders errors returned by handlers and middleware
func ErrorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		errorType := "unknown"

		var fe *fiber.Error
		var ce *types.CustomError
		switch {
		case errors.As(err, &ce):
			code, message, errorType = ce.Code, ce.Message, ce.Type
		case errors.As(err, &fe):
			code, message = fe.Code, fe.Message
		default:
			log.WithError(err).WithField("url", c.OriginalURL()).Error("unhandled request error")
		}

		return c.Status(code).JSON(fiber.Map{
			"status":    code,
			"message":   message,
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
			"type":      errorType,
		})
	}
}

// NotFound is the catch-all 404 handler
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":    fiber.StatusNotFound,
		"message":   "[404] Resource Not Found",
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
	})
}
