// mutation.go
//
// Versioned block content, edit leases and comment threads for wiki pages
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of contentdb.
// contentdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// contentdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with contentdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/contentdb/internal/blocks"
	"github.com/localnerve/contentdb/internal/metrics"
	"github.com/localnerve/contentdb/internal/models"
	"github.com/localnerve/contentdb/internal/notify"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const notifyTimeout = 2 * time.Second

// MutationResult describes a committed page version.
type MutationResult struct {
	PageID     string         `json:"pageId"`
	NewVersion uint64         `json:"newVersion"`
	ChangeType string         `json:"changeType"`
	Blocks     []blocks.Block `json:"blocks"`
}

// edit computes the next tree from the current one. It may read through tx.
type edit func(tx *gorm.DB, current []blocks.Block) (next []blocks.Block, changeType, summary string, err error)

// MutationEngine applies every structural change to page content. Each
// mutation checks the lease, checks the expected version, writes the new tree
// with a compare-and-swap and appends the history snapshot in the same
// transaction.
type MutationEngine struct {
	db          *gorm.DB
	store       *ContentStore
	history     *HistoryLedger
	locks       *LockManager
	notifier    notify.Notifier
	requireLock bool
	log         *logrus.Logger
	now         func() time.Time
}

// MutationConfig wires the engine's collaborators
type MutationConfig struct {
	DB          *gorm.DB
	Store       *ContentStore
	History     *HistoryLedger
	Locks       *LockManager
	Notifier    notify.Notifier
	RequireLock bool
	Log         *logrus.Logger
}

// NewMutationEngine creates the engine
func NewMutationEngine(cfg MutationConfig) *MutationEngine {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &MutationEngine{
		db:          cfg.DB,
		store:       cfg.Store,
		history:     cfg.History,
		locks:       cfg.Locks,
		notifier:    notifier,
		requireLock: cfg.RequireLock,
		log:         cfg.Log,
		now:         utcNow,
	}
}

// AddBlock inserts block under parentID, or at the root when parentID is
// empty. A negative or out of range index appends.
func (e *MutationEngine) AddBlock(ctx context.Context, pageID string, expected uint64, block blocks.Block, parentID string, index int, actor Actor) (*MutationResult, error) {
	return e.mutate(ctx, pageID, expected, actor, func(_ *gorm.DB, current []blocks.Block) ([]blocks.Block, string, string, error) {
		next, err := blocks.Insert(current, parentID, index, block)
		if err != nil {
			return nil, "", "", fromTreeError(err)
		}
		return next, models.ChangeBlockAdd, fmt.Sprintf("Added block %s", block.ID), nil
	})
}

// UpdateBlock replaces the type, properties and children of blockID in place
func (e *MutationEngine) UpdateBlock(ctx context.Context, pageID string, expected uint64, blockID string, block blocks.Block, actor Actor) (*MutationResult, error) {
	return e.mutate(ctx, pageID, expected, actor, func(_ *gorm.DB, current []blocks.Block) ([]blocks.Block, string, string, error) {
		if block.ID != "" && block.ID != blockID {
			return nil, "", "", validation("block id %s does not match %s", block.ID, blockID)
		}
		next, err := blocks.Replace(current, blockID, block)
		if err != nil {
			return nil, "", "", fromTreeError(err)
		}
		return next, models.ChangeUpdate, fmt.Sprintf("Updated block %s", blockID), nil
	})
}

// DeleteBlock removes blockID and its whole subtree
func (e *MutationEngine) DeleteBlock(ctx context.Context, pageID string, expected uint64, blockID string, actor Actor) (*MutationResult, error) {
	return e.mutate(ctx, pageID, expected, actor, func(_ *gorm.DB, current []blocks.Block) ([]blocks.Block, string, string, error) {
		next, removed, err := blocks.Remove(current, blockID)
		if err != nil {
			return nil, "", "", fromTreeError(err)
		}
		summary := fmt.Sprintf("Deleted block %s", blockID)
		if n := len(blocks.IDs(removed.Children)); n > 0 {
			summary = fmt.Sprintf("Deleted block %s and %d nested blocks", blockID, n)
		}
		return next, models.ChangeBlockDelete, summary, nil
	})
}

// MoveBlock re-parents blockID under newParentID (root when empty) at index
func (e *MutationEngine) MoveBlock(ctx context.Context, pageID string, expected uint64, blockID, newParentID string, index int, actor Actor) (*MutationResult, error) {
	return e.mutate(ctx, pageID, expected, actor, func(_ *gorm.DB, current []blocks.Block) ([]blocks.Block, string, string, error) {
		next, err := blocks.Move(current, blockID, newParentID, index)
		if err != nil {
			return nil, "", "", fromTreeError(err)
		}
		return next, models.ChangeBlockReorder, fmt.Sprintf("Moved block %s", blockID), nil
	})
}

// UpdateContent replaces the whole root list. A pure rearrangement of the
// same blocks is recorded as a reorder.
func (e *MutationEngine) UpdateContent(ctx context.Context, pageID string, expected uint64, list []blocks.Block, summary string, actor Actor) (*MutationResult, error) {
	return e.mutate(ctx, pageID, expected, actor, func(_ *gorm.DB, current []blocks.Block) ([]blocks.Block, string, string, error) {
		next := blocks.Clone(list)
		if next == nil {
			next = []blocks.Block{}
		}
		if err := blocks.Validate(next); err != nil {
			return nil, "", "", fromTreeError(err)
		}
		changeType := models.ChangeUpdate
		if blocks.IsReorder(current, next) {
			changeType = models.ChangeBlockReorder
		}
		if summary == "" {
			summary = "Updated content"
		}
		return next, changeType, summary, nil
	})
}

// RestoreVersion writes the snapshot of version forward as a new version. The
// page must still exist in the page directory.
func (e *MutationEngine) RestoreVersion(ctx context.Context, pageID string, expected, version uint64, actor Actor) (*MutationResult, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	if err := e.store.checkPage(ctx, pageID); err != nil {
		return nil, err
	}
	return e.mutate(ctx, pageID, expected, actor, func(tx *gorm.DB, _ []blocks.Block) ([]blocks.Block, string, string, error) {
		snapshot, err := e.history.version(tx, pageID, version)
		if err != nil {
			return nil, "", "", err
		}
		next, err := snapshot.Blocks.Blocks()
		if err != nil {
			return nil, "", "", storageFailure("decode snapshot", err)
		}
		return next, models.ChangeRestore, fmt.Sprintf("Restored from version %d", version), nil
	})
}

func (e *MutationEngine) mutate(ctx context.Context, pageID string, expected uint64, actor Actor, apply edit) (*MutationResult, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, err
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if e.requireLock {
		if err := e.locks.RequireHolder(ctx, pageID, actor); err != nil {
			return nil, err
		}
	}

	fields := logrus.Fields{
		"pageId":          pageID,
		"actor":           actor.UserID,
		"expectedVersion": expected,
	}

	result := &MutationResult{PageID: pageID}
	at := e.now()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		content, err := e.store.loadForUpdate(tx, pageID)
		if err != nil {
			return err
		}
		if content.Version != expected {
			return versionConflict(content.Version)
		}

		current, err := content.Blocks.Blocks()
		if err != nil {
			return storageFailure("decode content", err)
		}

		next, changeType, summary, err := apply(tx, current)
		if err != nil {
			return err
		}
		if err := blocks.Validate(next); err != nil {
			return fromTreeError(err)
		}
		blocks.Normalize(next)

		tree, err := models.NewBlockTree(next)
		if err != nil {
			return validation("blocks cannot be encoded: %v", err)
		}

		newVersion, err := e.store.compareAndSwap(tx, pageID, expected, tree, actor.UserID, at)
		if err != nil {
			return err
		}

		err = e.history.append(tx, &models.ContentHistory{
			PageID:        pageID,
			Version:       newVersion,
			Blocks:        tree,
			ChangedBy:     actor.UserID,
			ChangedAt:     at,
			ChangeType:    changeType,
			ChangeSummary: summary,
		})
		if err != nil {
			return err
		}
		if _, err := e.history.trim(tx, pageID, newVersion); err != nil {
			return err
		}

		result.NewVersion = newVersion
		result.ChangeType = changeType
		result.Blocks = next
		return nil
	})
	if err != nil {
		var ce *ContentError
		switch {
		case errors.As(err, &ce) && ce.Kind == KindStorage:
			e.log.WithFields(fields).WithError(ce.Err).Error("mutation failed")
		case IsKind(err, KindVersion):
			metrics.VersionConflicts.Inc()
			fallthrough
		default:
			e.log.WithFields(fields).WithError(err).Debug("mutation rejected")
		}
		return nil, err
	}

	metrics.Mutations.WithLabelValues(result.ChangeType).Inc()
	fields["newVersion"] = result.NewVersion
	fields["changeType"] = result.ChangeType
	e.log.WithFields(fields).Info("content mutated")

	e.publish(ctx, notify.Event{
		PageID:     pageID,
		NewVersion: result.NewVersion,
		ChangeType: result.ChangeType,
		Actor:      actor.UserID,
		At:         at,
	})
	return result, nil
}

// publish delivers the change event after commit. Failures are logged only.
func (e *MutationEngine) publish(ctx context.Context, event notify.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := e.notifier.Notify(ctx, event); err != nil {
		metrics.NotifyFailures.Inc()
		e.log.WithFields(logrus.Fields{
			"pageId":     event.PageID,
			"newVersion": event.NewVersion,
		}).WithError(err).Warn("change notification failed")
	}
}
