package handlers

import (
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/utils"
)

// LockHandler handles editing lease routes
type LockHandler struct {
	Locks *services.LockManager
}

// LockRequest is the body of the lock routes. TTLSeconds is optional and
// clamped to the configured maximum.
type LockRequest struct {
	PageID     string `json:"pageId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// maxTTLSeconds is the largest ttlSeconds that converts to a Duration without
// overflow. The lock manager still clamps to its own maximum.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

func (r LockRequest) ttl() time.Duration {
	if r.TTLSeconds <= 0 {
		return 0
	}
	if int64(r.TTLSeconds) > maxTTLSeconds {
		return time.Duration(maxTTLSeconds) * time.Second
	}
	return time.Duration(r.TTLSeconds) * time.Second
}

// lockRequest reads the page id from the body or the pageId query parameter
func lockRequest(c *fiber.Ctx, operation string) (LockRequest, error) {
	var req LockRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req, operation); err != nil {
			return req, err
		}
	}
	if req.PageID == "" {
		req.PageID = c.Query("pageId")
	}
	return req, nil
}

// AcquireLock handles POST /api/locks
// @Summary Acquire a page lock
// @Description Acquire, renew or take over the editing lease of a page for the caller's session
// @Tags Locks
// @Accept json
// @Produce json
// @Param X-Session-Id header string true "Editing session"
// @Param body body LockRequest true "Page and optional ttl"
// @Success 200 {object} services.LockStatus
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /locks [post]
func (h *LockHandler) AcquireLock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	req, err := lockRequest(c, "acquireLock")
	if err != nil {
		return err
	}

	status, err := h.Locks.Acquire(c.UserContext(), req.PageID, actor, req.ttl())
	if err != nil {
		return contentError(c, err, "acquireLock")
	}
	return utils.SuccessResponse(c, status, fiber.StatusOK)
}

// RenewLock handles POST /api/locks/renew
// @Summary Renew a page lock
// @Description Extend the caller's own unexpired lease
// @Tags Locks
// @Accept json
// @Produce json
// @Param X-Session-Id header string true "Editing session"
// @Param body body LockRequest true "Page and optional ttl"
// @Success 200 {object} services.LockStatus
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /locks/renew [post]
func (h *LockHandler) RenewLock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	req, err := lockRequest(c, "renewLock")
	if err != nil {
		return err
	}

	status, err := h.Locks.Renew(c.UserContext(), req.PageID, actor, req.ttl())
	if err != nil {
		return contentError(c, err, "renewLock")
	}
	return utils.SuccessResponse(c, status, fiber.StatusOK)
}

// ReleaseLock handles DELETE /api/locks
// @Summary Release a page lock
// @Description Release the caller's lease. Releasing a lease held by another session is a no-op.
// @Tags Locks
// @Accept json
// @Produce json
// @Param X-Session-Id header string true "Editing session"
// @Param pageId query string false "Page ID, when not sent in the body"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /locks [delete]
func (h *LockHandler) ReleaseLock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	req, err := lockRequest(c, "releaseLock")
	if err != nil {
		return err
	}

	released, err := h.Locks.Release(c.UserContext(), req.PageID, actor)
	if err != nil {
		return contentError(c, err, "releaseLock")
	}
	return utils.SuccessResponse(c, fiber.Map{
		"ok":       true,
		"pageId":   req.PageID,
		"released": released,
	}, fiber.StatusOK)
}

// GetLockStatus handles GET /api/locks/:pageId
// @Summary Get page lock status
// @Description Report the editing lease of a page without changing it
// @Tags Locks
// @Produce json
// @Param pageId path string true "Page ID"
// @Success 200 {object} services.LockStatus
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /locks/{pageId} [get]
func (h *LockHandler) GetLockStatus(c *fiber.Ctx) error {
	status, err := h.Locks.Status(c.UserContext(), c.Params("pageId"))
	if err != nil {
		return contentError(c, err, "getLockStatus")
	}
	return utils.SuccessResponse(c, status, fiber.StatusOK)
}
