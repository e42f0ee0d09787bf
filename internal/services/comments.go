package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxCommentLength = 10000

// CommentInput is a new comment or reply. Replies leave BlockID empty and
// inherit it from the parent.
type CommentInput struct {
	PageID   string
	BlockID  string
	ParentID string
	Content  string
	Mentions []string
}

// Thread is a root comment with its replies, oldest first.
type Thread struct {
	models.BlockComment
	Replies []models.BlockComment `json:"replies"`
}

// CommentThreadManager manages comment threads anchored to block ids. Anchors
// are loose: deleting a block leaves its comments in place.
type CommentThreadManager struct {
	db    *gorm.DB
	store *ContentStore
	log   *logrus.Logger
	now   func() time.Time
}

// NewCommentThreadManager creates the comment service
func NewCommentThreadManager(db *gorm.DB, store *ContentStore, log *logrus.Logger) *CommentThreadManager {
	return &CommentThreadManager{db: db, store: store, log: log, now: utcNow}
}

func cleanMentions(mentions []string) []string {
	seen := make(map[string]struct{}, len(mentions))
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validation("comment content is required")
	}
	if len(content) > maxCommentLength {
		return "", validation("comment longer than %d characters", maxCommentLength)
	}
	return content, nil
}

func mentionRows(commentID string, userIDs []string, at time.Time) []models.CommentMention {
	rows := make([]models.CommentMention, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.CommentMention{CommentID: commentID, MentionedUserID: id, CreatedAt: at})
	}
	return rows
}

// Add creates a root comment on a block or a reply to a root comment
func (m *CommentThreadManager) Add(ctx context.Context, in CommentInput, actor Actor) (*models.BlockComment, error) {
	if err := validatePageID(in.PageID); err != nil {
		return nil, err
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	page, err := m.store.Get(ctx, in.PageID)
	if err != nil {
		return nil, err
	}

	blockID := in.BlockID
	var parentID *string
	if in.ParentID != "" {
		parent, err := m.load(m.db.WithContext(ctx), in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.PageID != in.PageID {
			return nil, validation("comment %s belongs to another page", in.ParentID)
		}
		if !parent.IsRoot() {
			return nil, validation("replies can only be added to a root comment")
		}
		if blockID != "" && blockID != parent.BlockID {
			return nil, validation("reply block %s does not match thread block %s", blockID, parent.BlockID)
		}
		blockID = parent.BlockID
		parentID = &parent.ID
	} else {
		if blockID == "" {
			return nil, validation("block id is required for a new thread")
		}
		tree, err := page.Blocks.Blocks()
		if err != nil {
			return nil, storageFailure("decode content", err)
		}
		if _, ok := blocks.Find(tree, blockID); !ok {
			return nil, notFound("block %s not found on page %s", blockID, in.PageID)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, storageFailure("comment id", err)
	}
	now := m.now()
	comment := models.BlockComment{
		ID:        id.String(),
		PageID:    in.PageID,
		BlockID:   blockID,
		ParentID:  parentID,
		Content:   content,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		Mentions:  mentionRows(id.String(), cleanMentions(in.Mentions), now),
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := silent(tx).Omit(clause.Associations).Create(&comment).Error; err != nil {
			return storageFailure("create comment", err)
		}
		if len(comment.Mentions) > 0 {
			if err := silent(tx).Create(&comment.Mentions).Error; err != nil {
				return storageFailure("create mentions", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"pageId":    comment.PageID,
		"blockId":   comment.BlockID,
		"commentId": comment.ID,
		"reply":     parentID != nil,
		"mentions":  len(comment.Mentions),
	}).Info("comment added")

	return &comment, nil
}

// Update edits a comment's content. Only the author may edit. A nil mentions
// slice keeps the existing mentions; a non-nil one replaces them.
func (m *CommentThreadManager) Update(ctx context.Context, commentID, content string, mentions []string, actor Actor) (*models.BlockComment, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	var updated *models.BlockComment
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := m.load(tx, commentID)
		if err != nil {
			return err
		}
		if comment.CreatedBy != actor.UserID {
			return forbidden("only the author can edit comment %s", commentID)
		}

		now := m.now()
		err = silent(tx).Model(&models.BlockComment{}).
			Where("id = ?", commentID).
			Updates(map[string]interface{}{"content": content, "updated_at": now}).Error
		if err != nil {
			return storageFailure("update comment", err)
		}

		if mentions != nil {
			if err := silent(tx).Where("comment_id = ?", commentID).Delete(&models.CommentMention{}).Error; err != nil {
				return storageFailure("replace mentions", err)
			}
			if rows := mentionRows(commentID, cleanMentions(mentions), now); len(rows) > 0 {
				if err := silent(tx).Create(&rows).Error; err != nil {
					return storageFailure("replace mentions", err)
				}
			}
		}

		updated, err = m.loadWithMentions(tx, commentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns one comment with its mentions
func (m *CommentThreadManager) Get(ctx context.Context, commentID string) (*models.BlockComment, error) {
	return m.loadWithMentions(m.db.WithContext(ctx), commentID)
}

// PageComments returns every thread on a page
func (m *CommentThreadManager) PageComments(ctx context.Context, pageID string) ([]Thread, error) {
	return m.threads(ctx, pageID, "", false)
}

// BlockComments returns the threads anchored to one block
func (m *CommentThreadManager) BlockComments(ctx context.Context, pageID, blockID string) ([]Thread, error) {
	if blockID == "" {
		return nil, validation("block id is required")
	}
	return m.threads(ctx, pageID, blockID, false)
}

// UnresolvedComments returns unresolved threads with all their replies
func (m *CommentThreadManager) UnresolvedComments(ctx context.Context, pageID string) ([]Thread, error) {
	return m.threads(ctx, pageID, "", true)
}

func (m *CommentThreadManager) threads(ctx context.Context, pageID, blockID string, unresolvedOnly bool) ([]Thread, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}

	query := silent(m.db.WithContext(ctx)).
		Preload("Mentions").
		Where("page_id = ?", pageID)
	if blockID != "" {
		query = query.Where("block_id = ?", blockID)
	}

	var comments []models.BlockComment
	if err := query.Order("created_at ASC").Order("id ASC").Find(&comments).Error; err != nil {
		return nil, storageFailure("list comments", err)
	}
	return groupThreads(comments, unresolvedOnly), nil
}

// groupThreads turns creation-ordered comments into threads. Replies of
// filtered-out roots are dropped with them.
func groupThreads(comments []models.BlockComment, unresolvedOnly bool) []Thread {
	threads := []Thread{}
	index := make(map[string]int)
	for _, c := range comments {
		if !c.IsRoot() {
			continue
		}
		if unresolvedOnly && c.ResolvedAt != nil {
			continue
		}
		index[c.ID] = len(threads)
		threads = append(threads, Thread{BlockComment: c, Replies: []models.BlockComment{}})
	}
	for _, c := range comments {
		if c.IsRoot() {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}
	return threads
}

// Resolve marks a thread resolved. Resolving twice keeps the first resolution.
func (m *CommentThreadManager) Resolve(ctx context.Context, commentID string, actor Actor) (*models.BlockComment, error) {
	return m.setResolved(ctx, commentID, actor, true)
}

// Unresolve reopens a thread. Reopening an open thread is a no-op.
func (m *CommentThreadManager) Unresolve(ctx context.Context, commentID string, actor Actor) (*models.BlockComment, error) {
	return m.setResolved(ctx, commentID, actor, false)
}

func (m *CommentThreadManager) setResolved(ctx context.Context, commentID string, actor Actor, resolved bool) (*models.BlockComment, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	db := m.db.WithContext(ctx)

	comment, err := m.load(db, commentID)
	if err != nil {
		return nil, err
	}
	if !comment.IsRoot() {
		return nil, validation("only a root comment can be resolved")
	}

	var result *gorm.DB
	if resolved {
		result = silent(db).Model(&models.BlockComment{}).
			Where("id = ? AND resolved_at IS NULL", commentID).
			Updates(map[string]interface{}{"resolved_at": m.now(), "resolved_by": actor.UserID})
	} else {
		result = silent(db).Model(&models.BlockComment{}).
			Where("id = ? AND resolved_at IS NOT NULL", commentID).
			Updates(map[string]interface{}{"resolved_at": nil, "resolved_by": nil})
	}
	if result.Error != nil {
		return nil, storageFailure("resolve comment", result.Error)
	}

	if result.RowsAffected > 0 {
		m.log.WithFields(logrus.Fields{
			"commentId": commentID,
			"actor":     actor.UserID,
			"resolved":  resolved,
		}).Info("comment thread state changed")
	}
	return m.loadWithMentions(db, commentID)
}

// Delete removes a comment, its replies and all their mentions. Only the
// author or a moderator may delete.
func (m *CommentThreadManager) Delete(ctx context.Context, commentID string, actor Actor) error {
	if err := actor.validate(); err != nil {
		return err
	}

	var removed int
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := m.load(tx, commentID)
		if err != nil {
			return err
		}
		if comment.CreatedBy != actor.UserID && !actor.IsModerator() {
			return forbidden("only the author or a moderator can delete comment %s", commentID)
		}

		ids := []string{commentID}
		if comment.IsRoot() {
			var replies []string
			if err := silent(tx).Model(&models.BlockComment{}).Where("parent_id = ?", commentID).Pluck("id", &replies).Error; err != nil {
				return storageFailure("list replies", err)
			}
			ids = append(ids, replies...)
		}

		if err := silent(tx).Where("comment_id IN ?", ids).Delete(&models.CommentMention{}).Error; err != nil {
			return storageFailure("delete mentions", err)
		}
		if err := silent(tx).Where("id IN ?", ids).Delete(&models.BlockComment{}).Error; err != nil {
			return storageFailure("delete comments", err)
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"commentId": commentID,
		"actor":     actor.UserID,
		"removed":   removed,
	}).Info("comment deleted")
	return nil
}

func (m *CommentThreadManager) load(tx *gorm.DB, commentID string) (*models.BlockComment, error) {
	if commentID == "" {
		return nil, validation("comment id is required")
	}
	var comment models.BlockComment
	err := silent(tx).Where("id = ?", commentID).First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("comment %s not found", commentID)
	}
	if err != nil {
		return nil, storageFailure("load comment", err)
	}
	return &comment, nil
}

func (m *CommentThreadManager) loadWithMentions(tx *gorm.DB, commentID string) (*models.BlockComment, error) {
	var comment models.BlockComment
	err := silent(tx).Preload("Mentions").Where("id = ?", commentID).First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("comment %s not found", commentID)
	}
	if err != nil {
		return nil, storageFailure("load comment", err)
	}
	return &comment, nil
}
