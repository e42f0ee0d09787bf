// Package locks holds the editing lease backends. A lease is advisory and
// time bounded: an expired lease may be taken over by anyone.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoLease is returned when a page has no lease, or only an expired one
// where that distinction does not matter to the caller.
var ErrNoLease = errors.New("no active lease")

// Lease is the editing lease of a page.
type Lease struct {
	PageID    string    `json:"pageId"`
	LockedBy  string    `json:"lockedBy"`
	SessionID string    `json:"sessionId"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the lease has lapsed at now. A lease is still
// held at the exact instant it expires.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// HeldBy reports whether the lease belongs to the given user session.
func (l Lease) HeldBy(userID, sessionID string) bool {
	return l.LockedBy == userID && l.SessionID == sessionID
}

// Outcome describes how an acquire succeeded.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeRenewed Outcome = "renewed"
	OutcomeStolen  Outcome = "stolen"
)

// Grant is a successfully acquired lease.
type Grant struct {
	Lease
	Outcome Outcome `json:"outcome"`
}

// HeldError is returned when another session holds an unexpired lease.
type HeldError struct {
	Holder Lease
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("page %s is locked by %s until %s",
		e.Holder.PageID, e.Holder.LockedBy, e.Holder.ExpiresAt.Format(time.RFC3339))
}

// Store is a lease backend. Every method is a single atomic step against the
// shared store, so any number of service instances may call it concurrently.
type Store interface {
	// Acquire creates the lease, renews the caller's own unexpired lease, or
	// takes over an expired one. Otherwise it returns *HeldError.
	Acquire(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Grant, error)
	// Renew extends the caller's own unexpired lease. It returns *HeldError
	// when another session holds it and ErrNoLease when there is nothing to
	// renew.
	Renew(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Lease, error)
	// Release deletes the lease only if the caller holds it.
	Release(ctx context.Context, pageID, userID, sessionID string) (bool, error)
	// Get returns the stored lease, expired or not, or ErrNoLease.
	Get(ctx context.Context, pageID string) (Lease, error)
	// ReapExpired deletes every lease expired at now and reports how many.
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
