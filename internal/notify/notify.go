// Package notify publishes best-effort change events after a page mutation
// commits. Delivery failures never roll back or fail the mutation.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event announces a new page version.
type Event struct {
	PageID     string    `json:"pageId"`
	NewVersion uint64    `json:"newVersion"`
	ChangeType string    `json:"changeType"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}

// Notifier delivers change events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the service log.
type LogNotifier struct {
	Log *logrus.Logger
}

// Notify logs the event at info level
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Log.WithFields(logrus.Fields{
		"pageId":     event.PageID,
		"newVersion": event.NewVersion,
		"changeType": event.ChangeType,
		"actor":      event.Actor,
	}).Info("content changed")
	return nil
}

// RedisNotifier publishes events as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a publisher on channel
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the event
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify calls every notifier even when one fails
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, Event) error { return nil }
