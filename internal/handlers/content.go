// content.go
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
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/types"
	"github.com/localnerve/contentdb/internal/utils"
)

// ContentHandler handles page content and history routes
type ContentHandler struct {
	Store   *services.ContentStore
	Engine  *services.MutationEngine
	History *services.HistoryLedger
}

// CreateContentRequest is the body of POST /content
type CreateContentRequest struct {
	PageID string         `json:"pageId"`
	Blocks []blocks.Block `json:"blocks"`
}

// UpdateContentRequest is the body of PUT /content/{pageId}
type UpdateContentRequest struct {
	Blocks          []blocks.Block    `json:"blocks"`
	ChangeSummary   string            `json:"changeSummary"`
	ExpectedVersion *types.Version `json:"expectedVersion" swaggertype:"integer"`
}

// AddBlockRequest is the body of POST /content/{pageId}/blocks
type AddBlockRequest struct {
	Block           blocks.Block      `json:"block"`
	ParentID        string            `json:"parentId"`
	Index           *int              `json:"index"`
	ExpectedVersion *types.Version `json:"expectedVersion" swaggertype:"integer"`
}

// UpdateBlockRequest is the body of PUT /content/{pageId}/blocks/{blockId}
type UpdateBlockRequest struct {
	Block           blocks.Block      `json:"block"`
	ExpectedVersion *types.Version `json:"expectedVersion" swaggertype:"integer"`
}

// MoveBlockRequest is the body of POST /content/{pageId}/blocks/{blockId}/move
type MoveBlockRequest struct {
	ParentID        string            `json:"parentId"`
	Index           *int              `json:"index"`
	ExpectedVersion *types.Version `json:"expectedVersion" swaggertype:"integer"`
}

// VersionedRequest carries only expectedVersion
type VersionedRequest struct {
	ExpectedVersion *types.Version `json:"expectedVersion" swaggertype:"integer"`
}

func (h *ContentHandler) mutated(c *fiber.Ctx, res *services.MutationResult, err error, operation string) error {
	if err != nil {
		return contentError(c, err, operation)
	}
	return utils.MutationSuccessResponse(c, res.NewVersion, res.ChangeType, res.Blocks)
}

// CreateContent handles POST /api/content
// @Summary Create page content
// @Description Create the first version of a page's block tree
// @Tags Content
// @Accept json
// @Produce json
// @Param body body CreateContentRequest true "Page id and initial blocks"
// @Success 201 {object} models.PageContent
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content [post]
func (h *ContentHandler) CreateContent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req CreateContentRequest
	if err := parseBody(c, &req, "createContent"); err != nil {
		return err
	}

	content, err := h.Store.Create(c.UserContext(), req.PageID, req.Blocks, actor)
	if err != nil {
		return contentError(c, err, "createContent")
	}
	return utils.SuccessResponse(c, content, fiber.StatusCreated)
}

// GetContent handles GET /api/content/:pageId
// @Summary Get page content
// @Description Get the current block tree and version of a page
// @Tags Content
// @Produce json
// @Param pageId path string true "Page ID"
// @Success 200 {object} models.PageContent
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId} [get]
func (h *ContentHandler) GetContent(c *fiber.Ctx) error {
	content, err := h.Store.Get(c.UserContext(), c.Params("pageId"))
	if err != nil {
		return contentError(c, err, "getContent")
	}
	return utils.SuccessResponse(c, content, fiber.StatusOK)
}

// UpdateContent handles PUT /api/content/:pageId
// @Summary Replace page content
// @Description Replace the whole block tree of a page
// @Tags Content
// @Accept json
// @Produce json
// @Param pageId path string true "Page ID"
// @Param body body UpdateContentRequest true "New blocks and expected version"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId} [put]
func (h *ContentHandler) UpdateContent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req UpdateContentRequest
	if err := parseBody(c, &req, "updateContent"); err != nil {
		return err
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "updateContent")
	if err != nil {
		return err
	}

	res, err := h.Engine.UpdateContent(c.UserContext(), c.Params("pageId"), expected, req.Blocks, req.ChangeSummary, actor)
	return h.mutated(c, res, err, "updateContent")
}

// AddBlock handles POST /api/content/:pageId/blocks
// @Summary Add a block
// @Description Insert a block under the root or a parent block
// @Tags Content
// @Accept json
// @Produce json
// @Param pageId path string true "Page ID"
// @Param body body AddBlockRequest true "Block, position and expected version"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/blocks [post]
func (h *ContentHandler) AddBlock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req AddBlockRequest
	if err := parseBody(c, &req, "addBlock"); err != nil {
		return err
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "addBlock")
	if err != nil {
		return err
	}

	res, err := h.Engine.AddBlock(c.UserContext(), c.Params("pageId"), expected, req.Block, req.ParentID, optionalIndex(req.Index), actor)
	return h.mutated(c, res, err, "addBlock")
}

// UpdateBlock handles PUT /api/content/:pageId/blocks/:blockId
// @Summary Update a block
// @Description Replace the type, properties and children of a block
// @Tags Content
// @Accept json
// @Produce json
// @Param pageId path string true "Page ID"
// @Param blockId path string true "Block ID"
// @Param body body UpdateBlockRequest true "Block and expected version"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/blocks/{blockId} [put]
func (h *ContentHandler) UpdateBlock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req UpdateBlockRequest
	if err := parseBody(c, &req, "updateBlock"); err != nil {
		return err
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "updateBlock")
	if err != nil {
		return err
	}

	res, err := h.Engine.UpdateBlock(c.UserContext(), c.Params("pageId"), expected, c.Params("blockId"), req.Block, actor)
	return h.mutated(c, res, err, "updateBlock")
}

// DeleteBlock handles DELETE /api/content/:pageId/blocks/:blockId
// @Summary Delete a block
// @Description Delete a block and its whole subtree
// @Tags Content
// @Produce json
// @Param pageId path string true "Page ID"
// @Param blockId path string true "Block ID"
// @Param expectedVersion query integer false "Expected version, when not sent in the body"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/blocks/{blockId} [delete]
func (h *ContentHandler) DeleteBlock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req VersionedRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req, "deleteBlock"); err != nil {
			return err
		}
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "deleteBlock")
	if err != nil {
		return err
	}

	res, err := h.Engine.DeleteBlock(c.UserContext(), c.Params("pageId"), expected, c.Params("blockId"), actor)
	return h.mutated(c, res, err, "deleteBlock")
}

// MoveBlock handles POST /api/content/:pageId/blocks/:blockId/move
// @Summary Move a block
// @Description Move a block and its subtree under another parent or the root
// @Tags Content
// @Accept json
// @Produce json
// @Param pageId path string true "Page ID"
// @Param blockId path string true "Block ID"
// @Param body body MoveBlockRequest true "Destination and expected version"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/blocks/{blockId}/move [post]
func (h *ContentHandler) MoveBlock(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req MoveBlockRequest
	if err := parseBody(c, &req, "moveBlock"); err != nil {
		return err
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "moveBlock")
	if err != nil {
		return err
	}

	res, err := h.Engine.MoveBlock(c.UserContext(), c.Params("pageId"), expected, c.Params("blockId"), req.ParentID, optionalIndex(req.Index), actor)
	return h.mutated(c, res, err, "moveBlock")
}

// GetHistory handles GET /api/content/:pageId/history
// @Summary List page history
// @Description List history snapshots of a page, newest first
// @Tags History
// @Produce json
// @Param pageId path string true "Page ID"
// @Param limit query integer false "Maximum entries (default 20, max 200)"
// @Success 200 {array} models.ContentHistory
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/history [get]
func (h *ContentHandler) GetHistory(c *fiber.Ctx) error {
	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return badRequest("limit must be a positive integer", "getHistory")
		}
		limit = n
	}

	entries, err := h.History.List(c.UserContext(), c.Params("pageId"), limit)
	if err != nil {
		return contentError(c, err, "getHistory")
	}
	return utils.SuccessResponse(c, entries, fiber.StatusOK)
}

// GetVersion handles GET /api/content/:pageId/history/:version
// @Summary Get a page version
// @Description Get the snapshot of a page at exactly one version
// @Tags History
// @Produce json
// @Param pageId path string true "Page ID"
// @Param version path integer true "Version"
// @Success 200 {object} models.ContentHistory
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/history/{version} [get]
func (h *ContentHandler) GetVersion(c *fiber.Ctx) error {
	version, err := strconv.ParseUint(c.Params("version"), 10, 64)
	if err != nil {
		return badRequest("version must be a positive integer", "getVersion")
	}

	entry, err := h.History.Version(c.UserContext(), c.Params("pageId"), version)
	if err != nil {
		return contentError(c, err, "getVersion")
	}
	return utils.SuccessResponse(c, entry, fiber.StatusOK)
}

// RestoreVersion handles POST /api/content/:pageId/history/:version/restore
// @Summary Restore a page version
// @Description Write an old snapshot forward as a new version
// @Tags History
// @Accept json
// @Produce json
// @Param pageId path string true "Page ID"
// @Param version path integer true "Version to restore"
// @Param body body VersionedRequest true "Expected current version"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 423 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /content/{pageId}/history/{version}/restore [post]
func (h *ContentHandler) RestoreVersion(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	version, err := strconv.ParseUint(c.Params("version"), 10, 64)
	if err != nil {
		return badRequest("version must be a positive integer", "restoreVersion")
	}
	var req VersionedRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req, "restoreVersion"); err != nil {
			return err
		}
	}
	expected, err := expectedVersion(c, req.ExpectedVersion, "restoreVersion")
	if err != nil {
		return err
	}

	res, err := h.Engine.RestoreVersion(c.UserContext(), c.Params("pageId"), expected, version, actor)
	return h.mutated(c, res, err, "restoreVersion")
}
