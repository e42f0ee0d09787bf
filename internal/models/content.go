package models

import (
	"time"
)

// Change types recorded in ContentHistory.
const (
	ChangeCreate       = "create"
	ChangeUpdate       = "update"
	ChangeBlockAdd     = "block-add"
	ChangeBlockDelete  = "block-delete"
	ChangeBlockReorder = "block-reorder"
	ChangeRestore      = "restore"
)

// PageContent is the current block tree of a page. Version starts at 1 and is
// incremented by every successful mutation.
type PageContent struct {
	PageID    string    `gorm:"primaryKey;size:64" json:"pageId"`
	Blocks    BlockTree `gorm:"not null" json:"blocks"`
	Version   uint64    `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `gorm:"size:64;not null" json:"createdBy"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `gorm:"size:64;not null" json:"updatedBy"`
}

// ContentHistory is an immutable snapshot of a page at one version.
type ContentHistory struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	PageID        string    `gorm:"size:64;not null;uniqueIndex:idx_history_page_version,priority:1" json:"pageId"`
	Version       uint64    `gorm:"not null;uniqueIndex:idx_history_page_version,priority:2" json:"version"`
	Blocks        BlockTree `gorm:"not null" json:"blocks"`
	ChangedBy     string    `gorm:"size:64;not null" json:"changedBy"`
	ChangedAt     time.Time `gorm:"not null" json:"changedAt"`
	ChangeType    string    `gorm:"size:32;not null" json:"changeType"`
	ChangeSummary string    `gorm:"size:1024" json:"changeSummary,omitempty"`
}

// ContentLock is the editing lease of a page. Times are UTC epoch milliseconds
// so expiry comparisons behave the same on every dialect.
type ContentLock struct {
	PageID    string `gorm:"primaryKey;size:64"`
	LockedBy  string `gorm:"size:64;not null"`
	SessionID string `gorm:"size:128;not null"`
	LockedAt  int64  `gorm:"not null"`
	ExpiresAt int64  `gorm:"not null;index"`
}

// TableName overrides the table name for PageContent
func (PageContent) TableName() string {
	return "page_contents"
}

// TableName overrides the table name for ContentHistory
func (ContentHistory) TableName() string {
	return "content_history"
}

// TableName overrides the table name for ContentLock
func (ContentLock) TableName() string {
	return "content_locks"
}
