package models

import (
	"time"
)

// BlockComment is a comment anchored to a block id. ParentID is nil for a
// thread root; replies are one level deep.
type BlockComment struct {
	ID         string           `gorm:"primaryKey;size:36" json:"id"`
	PageID     string           `gorm:"size:64;not null;index:idx_comments_page_block,priority:1" json:"pageId"`
	BlockID    string           `gorm:"size:64;not null;index:idx_comments_page_block,priority:2" json:"blockId"`
	ParentID   *string          `gorm:"size:36;index" json:"parentId"`
	Content    string           `gorm:"type:text;not null" json:"content"`
	CreatedBy  string           `gorm:"size:64;not null" json:"createdBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	ResolvedAt *time.Time       `json:"resolvedAt"`
	ResolvedBy *string          `gorm:"size:64" json:"resolvedBy"`
	Mentions   []CommentMention `gorm:"foreignKey:CommentID" json:"mentions,omitempty"`
}

// CommentMention records a user mentioned by a comment.
type CommentMention struct {
	CommentID       string    `gorm:"primaryKey;size:36" json:"commentId"`
	MentionedUserID string    `gorm:"primaryKey;size:64" json:"mentionedUserId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName overrides the table name for BlockComment
func (BlockComment) TableName() string {
	return "block_comments"
}

// TableName overrides the table name for CommentMention
func (CommentMention) TableName() string {
	return "comment_mentions"
}

// IsRoot reports whether the comment starts a thread.
func (c *BlockComment) IsRoot() bool {
	return c.ParentID == nil
}
