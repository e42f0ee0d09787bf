package services

import (
	"context"
	"errors"
	"time"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/models"
	"github.com/localnerve/contentdb/internal/pages"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const maxPageIDLength = 64

// ContentStore owns the page_contents table: one versioned block tree per page.
type ContentStore struct {
	db      *gorm.DB
	pages   pages.Directory
	history *HistoryLedger
	log     *logrus.Logger
	now     func() time.Time
}

// NewContentStore creates a content store. A nil directory accepts every page.
func NewContentStore(db *gorm.DB, dir pages.Directory, history *HistoryLedger, log *logrus.Logger) *ContentStore {
	if dir == nil {
		dir = pages.AllowAll{}
	}
	return &ContentStore{
		db:      db,
		pages:   dir,
		history: history,
		log:     log,
		now:     utcNow,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// silent disables GORM logging for expected misses
func silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
}

func validatePageID(pageID string) error {
	if pageID == "" {
		return validation("page id is required")
	}
	if len(pageID) > maxPageIDLength {
		return validation("page id longer than %d characters", maxPageIDLength)
	}
	return nil
}

// Create stores the first version of a page's content and its version 1
// history snapshot. It fails with KindConflict when content already exists.
func (s *ContentStore) Create(ctx context.Context, pageID string, initial []blocks.Block, actor Actor) (*models.PageContent, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	if err := s.checkPage(ctx, pageID); err != nil {
		return nil, err
	}

	list := blocks.Clone(initial)
	if list == nil {
		list = []blocks.Block{}
	}
	if err := blocks.Validate(list); err != nil {
		return nil, fromTreeError(err)
	}
	blocks.Normalize(list)

	tree, err := models.NewBlockTree(list)
	if err != nil {
		return nil, validation("blocks cannot be encoded: %v", err)
	}

	now := s.now()
	content := models.PageContent{
		PageID:    pageID,
		Blocks:    tree,
		Version:   1,
		CreatedAt: now,
		CreatedBy: actor.UserID,
		UpdatedAt: now,
		UpdatedBy: actor.UserID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := silent(tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&content)
		if result.Error != nil {
			return storageFailure("create content", result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict("content for page %s already exists", pageID)
		}

		return s.history.append(tx, &models.ContentHistory{
			PageID:        pageID,
			Version:       1,
			Blocks:        tree,
			ChangedBy:     actor.UserID,
			ChangedAt:     now,
			ChangeType:    models.ChangeCreate,
			ChangeSummary: "Created content",
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"pageId": pageID,
		"actor":  actor.UserID,
		"blocks": len(list),
	}).Info("content created")

	return &content, nil
}

// checkPage asks the page directory whether pageID is a real page
func (s *ContentStore) checkPage(ctx context.Context, pageID string) error {
	exists, err := s.pages.Exists(ctx, pageID)
	if err != nil {
		return &ContentError{Kind: KindStorage, Message: "page directory unavailable", Err: err}
	}
	if !exists {
		return notFound("page %s does not exist", pageID)
	}
	return nil
}

// Get returns the current content of a page
func (s *ContentStore) Get(ctx context.Context, pageID string) (*models.PageContent, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx), pageID)
}

func (s *ContentStore) load(tx *gorm.DB, pageID string) (*models.PageContent, error) {
	return s.find(silent(tx), pageID)
}

// loadForUpdate reads the row with a row lock so the version seen inside a
// mutation transaction is the latest committed one. SQLite ignores the lock
// and serializes writers instead.
func (s *ContentStore) loadForUpdate(tx *gorm.DB, pageID string) (*models.PageContent, error) {
	return s.find(silent(tx).Clauses(clause.Locking{Strength: "UPDATE"}), pageID)
}

func (s *ContentStore) find(db *gorm.DB, pageID string) (*models.PageContent, error) {
	var content models.PageContent
	err := db.Where("page_id = ?", pageID).First(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("no content for page %s, create it first", pageID)
	}
	if err != nil {
		return nil, storageFailure("load content", err)
	}
	return &content, nil
}

// compareAndSwap writes tree as version expected+1 only if the stored version
// is still expected. It is the single serialization point for writers.
func (s *ContentStore) compareAndSwap(tx *gorm.DB, pageID string, expected uint64, tree models.BlockTree, userID string, at time.Time) (uint64, error) {
	result := silent(tx).Model(&models.PageContent{}).
		Where("page_id = ? AND version = ?", pageID, expected).
		Updates(map[string]interface{}{
			"blocks":     tree,
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": at,
			"updated_by": userID,
		})
	if result.Error != nil {
		return 0, storageFailure("update content", result.Error)
	}
	if result.RowsAffected == 0 {
		current, err := s.loadForUpdate(tx, pageID)
		if err != nil {
			return 0, err
		}
		return 0, versionConflict(current.Version)
	}
	return expected + 1, nil
}
