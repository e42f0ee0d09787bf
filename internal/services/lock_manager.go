package services

import (
	"context"
	"errors"
	"time"

	"github.com/localnerve/contentdb/internal/locks"
	"github.com/localnerve/contentdb/internal/metrics"
	"github.com/sirupsen/logrus"
)

// LockStatus is the externally visible state of a page lease.
type LockStatus struct {
	PageID    string     `json:"pageId"`
	Locked    bool       `json:"locked"`
	LockedBy  string     `json:"lockedBy,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	LockedAt  *time.Time `json:"lockedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
}

func statusOf(lease locks.Lease, now time.Time) *LockStatus {
	lockedAt, expiresAt := lease.LockedAt, lease.ExpiresAt
	expired := lease.Expired(now)
	return &LockStatus{
		PageID:    lease.PageID,
		Locked:    !expired,
		LockedBy:  lease.LockedBy,
		SessionID: lease.SessionID,
		LockedAt:  &lockedAt,
		ExpiresAt: &expiresAt,
		Expired:   expired,
	}
}

// LockManager grants advisory editing leases. It never blocks: a lease is
// granted, renewed, taken over when expired, or refused with the holder.
type LockManager struct {
	store  locks.Store
	ttl    time.Duration
	maxTTL time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

// NewLockManager creates a lease manager over store. ttl is the default lease
// length and maxTTL caps what callers may request.
func NewLockManager(store locks.Store, ttl, maxTTL time.Duration, log *logrus.Logger) *LockManager {
	return &LockManager{
		store:  store,
		ttl:    ttl,
		maxTTL: maxTTL,
		log:    log,
		now:    utcNow,
	}
}

func (m *LockManager) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return m.ttl
	}
	if ttl > m.maxTTL {
		return m.maxTTL
	}
	return ttl
}

func (m *LockManager) validate(pageID string, actor Actor) error {
	if err := validatePageID(pageID); err != nil {
		return err
	}
	if err := actor.validate(); err != nil {
		return err
	}
	if actor.SessionID == "" {
		return validation("session id is required")
	}
	return nil
}

func heldConflict(held *locks.HeldError) *ContentError {
	holder := held.Holder
	return lockConflict(held.Error(), &holder)
}

// Acquire grants the page lease to the actor's session
func (m *LockManager) Acquire(ctx context.Context, pageID string, actor Actor, ttl time.Duration) (*LockStatus, error) {
	if err := m.validate(pageID, actor); err != nil {
		return nil, err
	}

	now := m.now()
	grant, err := m.store.Acquire(ctx, pageID, actor.UserID, actor.SessionID, now, m.clampTTL(ttl))
	var held *locks.HeldError
	if errors.As(err, &held) {
		metrics.LockConflicts.Inc()
		return nil, heldConflict(held)
	}
	if err != nil {
		return nil, storageFailure("acquire lock", err)
	}

	metrics.LockGrants.WithLabelValues(string(grant.Outcome)).Inc()
	m.log.WithFields(logrus.Fields{
		"pageId":    pageID,
		"actor":     actor.UserID,
		"sessionId": actor.SessionID,
		"outcome":   grant.Outcome,
		"expiresAt": grant.ExpiresAt,
	}).Debug("lock granted")

	status := statusOf(grant.Lease, now)
	status.Outcome = string(grant.Outcome)
	return status, nil
}

// Renew extends the actor's own unexpired lease
func (m *LockManager) Renew(ctx context.Context, pageID string, actor Actor, ttl time.Duration) (*LockStatus, error) {
	if err := m.validate(pageID, actor); err != nil {
		return nil, err
	}

	now := m.now()
	lease, err := m.store.Renew(ctx, pageID, actor.UserID, actor.SessionID, now, m.clampTTL(ttl))
	var held *locks.HeldError
	switch {
	case errors.As(err, &held):
		metrics.LockConflicts.Inc()
		return nil, heldConflict(held)
	case errors.Is(err, locks.ErrNoLease):
		return nil, notFound("no active lock on page %s to renew", pageID)
	case err != nil:
		return nil, storageFailure("renew lock", err)
	}

	status := statusOf(lease, now)
	status.Outcome = string(locks.OutcomeRenewed)
	return status, nil
}

// Release drops the lease if the actor's session holds it. Releasing a lease
// held by someone else, or no lease, is a no-op reported as false.
func (m *LockManager) Release(ctx context.Context, pageID string, actor Actor) (bool, error) {
	if err := m.validate(pageID, actor); err != nil {
		return false, err
	}
	released, err := m.store.Release(ctx, pageID, actor.UserID, actor.SessionID)
	if err != nil {
		return false, storageFailure("release lock", err)
	}
	if released {
		m.log.WithFields(logrus.Fields{
			"pageId":    pageID,
			"actor":     actor.UserID,
			"sessionId": actor.SessionID,
		}).Debug("lock released")
	}
	return released, nil
}

// Status reports the page lease without changing it
func (m *LockManager) Status(ctx context.Context, pageID string) (*LockStatus, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	lease, err := m.store.Get(ctx, pageID)
	if errors.Is(err, locks.ErrNoLease) {
		return &LockStatus{PageID: pageID}, nil
	}
	if err != nil {
		return nil, storageFailure("read lock", err)
	}
	return statusOf(lease, m.now()), nil
}

// RequireHolder succeeds only when the actor's session holds an unexpired
// lease on the page.
func (m *LockManager) RequireHolder(ctx context.Context, pageID string, actor Actor) error {
	lease, err := m.store.Get(ctx, pageID)
	if errors.Is(err, locks.ErrNoLease) {
		metrics.LockConflicts.Inc()
		return lockConflict("acquire the page lock before editing", nil)
	}
	if err != nil {
		return storageFailure("read lock", err)
	}
	if lease.Expired(m.now()) {
		metrics.LockConflicts.Inc()
		return lockConflict("page lock has expired, acquire it again", &lease)
	}
	if !lease.HeldBy(actor.UserID, actor.SessionID) {
		metrics.LockConflicts.Inc()
		return heldConflict(&locks.HeldError{Holder: lease})
	}
	return nil
}

// ReapExpired deletes expired leases. Idempotent.
func (m *LockManager) ReapExpired(ctx context.Context) (int64, error) {
	n, err := m.store.ReapExpired(ctx, m.now())
	if err != nil {
		return n, storageFailure("reap locks", err)
	}
	if n > 0 {
		metrics.LocksReaped.Add(float64(n))
		m.log.WithField("reaped", n).Info("expired locks reaped")
	}
	return n, nil
}
