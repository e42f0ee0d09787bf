package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/contentdb/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore keeps leases in the content_locks table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a lease store on db. The content_locks table must be
// migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// quiet disables GORM logging for expected misses and conflicts
func (s *GormStore) quiet(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Session(&gorm.Session{Logger: s.db.Logger.LogMode(logger.Silent)})
}

// Acquire tries, in order: renew own lease, take over an expired lease,
// insert a new one. Each step is one conditional statement, so a racing
// instance can only make a later step miss, never double-grant.
func (s *GormStore) Acquire(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Grant, error) {
	nowMs := now.UnixMilli()
	expMs := now.Add(ttl).UnixMilli()

	for attempt := 0; attempt < 3; attempt++ {
		renewed, err := s.extend(ctx, pageID, userID, sessionID, nowMs, expMs)
		if err != nil {
			return Grant{}, err
		}
		if renewed {
			lease, err := s.Get(ctx, pageID)
			return Grant{Lease: lease, Outcome: OutcomeRenewed}, err
		}

		result := s.quiet(ctx).Model(&models.ContentLock{}).
			Where("page_id = ? AND expires_at < ?", pageID, nowMs).
			Updates(map[string]interface{}{
				"locked_by":  userID,
				"session_id": sessionID,
				"locked_at":  nowMs,
				"expires_at": expMs,
			})
		if result.Error != nil {
			return Grant{}, fmt.Errorf("steal lease: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return Grant{Lease: newLease(pageID, userID, sessionID, nowMs, expMs), Outcome: OutcomeStolen}, nil
		}

		row := models.ContentLock{
			PageID:    pageID,
			LockedBy:  userID,
			SessionID: sessionID,
			LockedAt:  nowMs,
			ExpiresAt: expMs,
		}
		result = s.quiet(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return Grant{}, fmt.Errorf("insert lease: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return Grant{Lease: newLease(pageID, userID, sessionID, nowMs, expMs), Outcome: OutcomeCreated}, nil
		}

		holder, err := s.Get(ctx, pageID)
		if errors.Is(err, ErrNoLease) {
			// released between our statements, go again
			continue
		}
		if err != nil {
			return Grant{}, err
		}
		if holder.Expired(now) || holder.HeldBy(userID, sessionID) {
			continue
		}
		return Grant{}, &HeldError{Holder: holder}
	}
	return Grant{}, fmt.Errorf("acquire lease for %s: too much contention", pageID)
}

func (s *GormStore) extend(ctx context.Context, pageID, userID, sessionID string, nowMs, expMs int64) (bool, error) {
	result := s.quiet(ctx).Model(&models.ContentLock{}).
		Where("page_id = ? AND locked_by = ? AND session_id = ? AND expires_at >= ?", pageID, userID, sessionID, nowMs).
		Update("expires_at", expMs)
	if result.Error != nil {
		return false, fmt.Errorf("renew lease: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Renew extends the caller's own unexpired lease
func (s *GormStore) Renew(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Lease, error) {
	renewed, err := s.extend(ctx, pageID, userID, sessionID, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return Lease{}, err
	}
	current, err := s.Get(ctx, pageID)
	if err != nil {
		return Lease{}, err
	}
	if renewed {
		return current, nil
	}
	if current.Expired(now) {
		return Lease{}, ErrNoLease
	}
	if !current.HeldBy(userID, sessionID) {
		return Lease{}, &HeldError{Holder: current}
	}
	// our lease, unexpired, but the update missed: it was renewed concurrently
	return current, nil
}

// Release deletes the lease if userID and sessionID hold it
func (s *GormStore) Release(ctx context.Context, pageID, userID, sessionID string) (bool, error) {
	result := s.quiet(ctx).
		Where("page_id = ? AND locked_by = ? AND session_id = ?", pageID, userID, sessionID).
		Delete(&models.ContentLock{})
	if result.Error != nil {
		return false, fmt.Errorf("release lease: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Get returns the stored lease
func (s *GormStore) Get(ctx context.Context, pageID string) (Lease, error) {
	var row models.ContentLock
	err := s.quiet(ctx).Where("page_id = ?", pageID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Lease{}, ErrNoLease
	}
	if err != nil {
		return Lease{}, fmt.Errorf("read lease: %w", err)
	}
	return newLease(row.PageID, row.LockedBy, row.SessionID, row.LockedAt, row.ExpiresAt), nil
}

// ReapExpired deletes leases expired at now
func (s *GormStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.quiet(ctx).
		Where("expires_at < ?", now.UnixMilli()).
		Delete(&models.ContentLock{})
	if result.Error != nil {
		return 0, fmt.Errorf("reap leases: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func newLease(pageID, userID, sessionID string, lockedAt, expiresAt int64) Lease {
	return Lease{
		PageID:    pageID,
		LockedBy:  userID,
		SessionID: sessionID,
		LockedAt:  fromMillis(lockedAt),
		ExpiresAt: fromMillis(expiresAt),
	}
}
