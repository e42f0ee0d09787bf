package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/types"
	"github.com/localnerve/contentdb/internal/utils"
)

// CommentHandler handles comment thread routes
type CommentHandler struct {
	Comments *services.CommentThreadManager
}

// CommentRequest is the body of POST /comments. Mentions may be one user id
// or a list.
type CommentRequest struct {
	PageID   string                 `json:"pageId"`
	BlockID  string                 `json:"blockId"`
	ParentID string                 `json:"parentId"`
	Content  string                 `json:"content"`
	Mentions types.FlexList[string] `json:"mentions" swaggertype:"array,string"`
}

// UpdateCommentRequest is the body of PUT /comments/{commentId}. Omitting
// mentions keeps the existing ones.
type UpdateCommentRequest struct {
	Content  string                  `json:"content"`
	Mentions *types.FlexList[string] `json:"mentions" swaggertype:"array,string"`
}

// AddComment handles POST /api/comments
// @Summary Add a comment
// @Description Start a thread on a block, or reply to a thread
// @Tags Comments
// @Accept json
// @Produce json
// @Param body body CommentRequest true "Comment"
// @Success 201 {object} models.BlockComment
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments [post]
func (h *CommentHandler) AddComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := parseBody(c, &req, "addComment"); err != nil {
		return err
	}

	comment, err := h.Comments.Add(c.UserContext(), services.CommentInput{
		PageID:   req.PageID,
		BlockID:  req.BlockID,
		ParentID: req.ParentID,
		Content:  req.Content,
		Mentions: req.Mentions.Slice(),
	}, actor)
	if err != nil {
		return contentError(c, err, "addComment")
	}
	return utils.SuccessResponse(c, comment, fiber.StatusCreated)
}

// GetPageComments handles GET /api/comments/:pageId
// @Summary Get page comments
// @Description Get every comment thread on a page, oldest first
// @Tags Comments
// @Produce json
// @Param pageId path string true "Page ID"
// @Success 200 {array} services.Thread
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{pageId} [get]
func (h *CommentHandler) GetPageComments(c *fiber.Ctx) error {
	threads, err := h.Comments.PageComments(c.UserContext(), c.Params("pageId"))
	if err != nil {
		return contentError(c, err, "getPageComments")
	}
	return utils.SuccessResponse(c, threads, fiber.StatusOK)
}

// GetBlockComments handles GET /api/comments/:pageId/blocks/:blockId
// @Summary Get block comments
// @Description Get the comment threads anchored to one block
// @Tags Comments
// @Produce json
// @Param pageId path string true "Page ID"
// @Param blockId path string true "Block ID"
// @Success 200 {array} services.Thread
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{pageId}/blocks/{blockId} [get]
func (h *CommentHandler) GetBlockComments(c *fiber.Ctx) error {
	threads, err := h.Comments.BlockComments(c.UserContext(), c.Params("pageId"), c.Params("blockId"))
	if err != nil {
		return contentError(c, err, "getBlockComments")
	}
	return utils.SuccessResponse(c, threads, fiber.StatusOK)
}

// GetUnresolvedComments handles GET /api/comments/:pageId/unresolved
// @Summary Get unresolved comments
// @Description Get the unresolved threads of a page with their replies
// @Tags Comments
// @Produce json
// @Param pageId path string true "Page ID"
// @Success 200 {array} services.Thread
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{pageId}/unresolved [get]
func (h *CommentHandler) GetUnresolvedComments(c *fiber.Ctx) error {
	threads, err := h.Comments.UnresolvedComments(c.UserContext(), c.Params("pageId"))
	if err != nil {
		return contentError(c, err, "getUnresolvedComments")
	}
	return utils.SuccessResponse(c, threads, fiber.StatusOK)
}

// UpdateComment handles PUT /api/comments/:commentId
// @Summary Edit a comment
// @Description Edit the content and optionally the mentions of a comment. Author only.
// @Tags Comments
// @Accept json
// @Produce json
// @Param commentId path string true "Comment ID"
// @Param body body UpdateCommentRequest true "New content"
// @Success 200 {object} models.BlockComment
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{commentId} [put]
func (h *CommentHandler) UpdateComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req UpdateCommentRequest
	if err := parseBody(c, &req, "updateComment"); err != nil {
		return err
	}

	var mentions []string
	if req.Mentions != nil {
		mentions = req.Mentions.Slice()
		if mentions == nil {
			mentions = []string{}
		}
	}

	comment, err := h.Comments.Update(c.UserContext(), c.Params("commentId"), req.Content, mentions, actor)
	if err != nil {
		return contentError(c, err, "updateComment")
	}
	return utils.SuccessResponse(c, comment, fiber.StatusOK)
}

// DeleteComment handles DELETE /api/comments/:commentId
// @Summary Delete a comment
// @Description Delete a comment. Deleting a thread root deletes its replies. Author or moderator only.
// @Tags Comments
// @Produce json
// @Param commentId path string true "Comment ID"
// @Success 204
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{commentId} [delete]
func (h *CommentHandler) DeleteComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.Comments.Delete(c.UserContext(), c.Params("commentId"), actor); err != nil {
		return contentError(c, err, "deleteComment")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResolveComment handles POST /api/comments/:commentId/resolve
// @Summary Resolve a thread
// @Description Mark a thread resolved. Idempotent.
// @Tags Comments
// @Produce json
// @Param commentId path string true "Root comment ID"
// @Success 200 {object} models.BlockComment
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{commentId}/resolve [post]
func (h *CommentHandler) ResolveComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	comment, err := h.Comments.Resolve(c.UserContext(), c.Params("commentId"), actor)
	if err != nil {
		return contentError(c, err, "resolveComment")
	}
	return utils.SuccessResponse(c, comment, fiber.StatusOK)
}

// UnresolveComment handles POST /api/comments/:commentId/unresolve
// @Summary Reopen a thread
// @Description Mark a thread unresolved. Idempotent.
// @Tags Comments
// @Produce json
// @Param commentId path string true "Root comment ID"
// @Success 200 {object} models.BlockComment
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /comments/{commentId}/unresolve [post]
func (h *CommentHandler) UnresolveComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	comment, err := h.Comments.Unresolve(c.UserContext(), c.Params("commentId"), actor)
	if err != nil {
		return contentError(c, err, "unresolveComment")
	}
	return utils.SuccessResponse(c, comment, fiber.StatusOK)
}
