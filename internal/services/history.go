package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/localnerve/contentdb/internal/metrics"
	"github.com/localnerve/contentdb/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// History listing limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// HistoryLedger is the append-only log of page snapshots. Rows are written
// only inside a mutation transaction and removed only by retention.
type HistoryLedger struct {
	db        *gorm.DB
	retention int
	log       *logrus.Logger
}

// NewHistoryLedger creates a ledger keeping the newest retention versions per
// page; zero keeps everything.
func NewHistoryLedger(db *gorm.DB, retention int, log *logrus.Logger) *HistoryLedger {
	return &HistoryLedger{db: db, retention: retention, log: log}
}

func (h *HistoryLedger) append(tx *gorm.DB, entry *models.ContentHistory) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return storageFailure("history id", err)
		}
		entry.ID = id.String()
	}
	if err := silent(tx).Create(entry).Error; err != nil {
		return storageFailure("append history", err)
	}
	return nil
}

// List returns up to limit snapshots of a page, newest first
func (h *HistoryLedger) List(ctx context.Context, pageID string, limit int) ([]models.ContentHistory, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	db := silent(h.db.WithContext(ctx))

	var count int64
	if err := db.Model(&models.PageContent{}).Where("page_id = ?", pageID).Count(&count).Error; err != nil {
		return nil, storageFailure("count content", err)
	}
	if count == 0 {
		return nil, notFound("no content for page %s", pageID)
	}

	query := db
	if db.Dialector.Name() == "mysql" {
		query = query.Clauses(hints.UseIndex("idx_history_page_version"))
	}

	entries := []models.ContentHistory{}
	err := query.Where("page_id = ?", pageID).
		Order("version DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, storageFailure("list history", err)
	}
	return entries, nil
}

// Version returns the snapshot of a page at exactly version
func (h *HistoryLedger) Version(ctx context.Context, pageID string, version uint64) (*models.ContentHistory, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	return h.version(h.db.WithContext(ctx), pageID, version)
}

func (h *HistoryLedger) version(tx *gorm.DB, pageID string, version uint64) (*models.ContentHistory, error) {
	var entry models.ContentHistory
	err := silent(tx).Where("page_id = ? AND version = ?", pageID, version).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("version %d of page %s not found", version, pageID)
	}
	if err != nil {
		return nil, storageFailure("load history", err)
	}
	return &entry, nil
}

// trim deletes snapshots older than the retention window ending at newest.
// Versions are contiguous, so the window is a version range.
func (h *HistoryLedger) trim(tx *gorm.DB, pageID string, newest uint64) (int64, error) {
	if h.retention <= 0 || newest <= uint64(h.retention) {
		return 0, nil
	}
	result := silent(tx).
		Where("page_id = ? AND version <= ?", pageID, newest-uint64(h.retention)).
		Delete(&models.ContentHistory{})
	if result.Error != nil {
		return 0, storageFailure("trim history", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.HistoryTrimmed.Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// SweepAll applies retention to every page and reports deleted snapshots.
// Safe to run concurrently with writers and other sweepers.
func (h *HistoryLedger) SweepAll(ctx context.Context) (int64, error) {
	if h.retention <= 0 {
		return 0, nil
	}

	type pageVersion struct {
		PageID  string
		Version uint64
	}
	var rows []pageVersion
	err := silent(h.db.WithContext(ctx)).Model(&models.PageContent{}).
		Select("page_id, version").
		Where("version > ?", h.retention).
		Scan(&rows).Error
	if err != nil {
		return 0, storageFailure("list pages", err)
	}

	var total int64
	for _, row := range rows {
		n, err := h.trim(h.db.WithContext(ctx), row.PageID, row.Version)
		if err != nil {
			return total, err
		}
		total += n
	}

	if total > 0 {
		h.log.WithFields(logrus.Fields{
			"pages":     len(rows),
			"deleted":   total,
			"retention": h.retention,
		}).Info("history swept")
	}
	return total, nil
}
