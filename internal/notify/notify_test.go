package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Event) error { return f.err }

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "changes")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := Event{PageID: "p1", NewVersion: 3, ChangeType: "block-add", Actor: "userA", At: time.Now().UTC()}
	require.NoError(t, NewRedisNotifier(client, "changes").Notify(ctx, event))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "p1", got.PageID)
		assert.Equal(t, uint64(3), got.NewVersion)
		assert.Equal(t, "block-add", got.ChangeType)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestRedisNotifierUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewRedisNotifier(client, "changes").Notify(context.Background(), Event{PageID: "p1"})
	assert.Error(t, err)
}

func TestMultiJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	boom := errors.New("boom")
	m := Multi{LogNotifier{Log: log}, failing{err: boom}, Nop{}}
	err := m.Notify(context.Background(), Event{PageID: "p1", NewVersion: 2})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "content changed")
}
