package services

import (
	"errors"
	"fmt"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/locks"
)

// Kind classifies a ContentError for callers and the HTTP layer.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindVersion     Kind = "version"
	KindLock        Kind = "lock"
	KindDuplicateID Kind = "duplicate_id"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindForbidden   Kind = "forbidden"
	KindStorage     Kind = "storage"
)

// ContentError is the error type returned by every content service.
type ContentError struct {
	Kind    Kind
	Message string

	// CurrentVersion is set for KindVersion
	CurrentVersion uint64
	// Holder is set for KindLock when a lease exists
	Holder *locks.Lease
	// BlockID is set for KindDuplicateID and block-level failures
	BlockID string

	Err error
}

func (e *ContentError) Error() string {
	if e.Err != nil && e.Kind != KindStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not a ContentError
func KindOf(err error) Kind {
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is a ContentError of kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func notFound(format string, args ...interface{}) *ContentError {
	return &ContentError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func versionConflict(current uint64) *ContentError {
	return &ContentError{
		Kind:           KindVersion,
		Message:        fmt.Sprintf("E_VERSION - Refresh and reconcile with current version %d and retry.", current),
		CurrentVersion: current,
	}
}

func lockConflict(message string, holder *locks.Lease) *ContentError {
	return &ContentError{Kind: KindLock, Message: message, Holder: holder}
}

func validation(format string, args ...interface{}) *ContentError {
	return &ContentError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...interface{}) *ContentError {
	return &ContentError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...interface{}) *ContentError {
	return &ContentError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// storageFailure hides the driver error from clients; Error() returns only
// the operation.
func storageFailure(op string, err error) *ContentError {
	return &ContentError{Kind: KindStorage, Message: "storage failure: " + op, Err: err}
}

// fromTreeError maps block tree errors onto ContentError kinds
func fromTreeError(err error) error {
	var dup *blocks.DuplicateIDError
	var inv *blocks.InvalidError
	switch {
	case errors.As(err, &dup):
		return &ContentError{Kind: KindDuplicateID, Message: dup.Error(), BlockID: dup.ID}
	case errors.As(err, &inv):
		return &ContentError{Kind: KindValidation, Message: inv.Error(), BlockID: inv.BlockID}
	case errors.Is(err, blocks.ErrNotFound):
		return &ContentError{Kind: KindNotFound, Message: err.Error()}
	}
	return err
}
