package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T, minIdle time.Duration) (*Notifier, *Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	n := NewNotifier(client, "pulse:events:posts")
	q := NewQueue(client, "pulse:events:posts", "fanout", minIdle)
	require.NoError(t, q.EnsureGroup(context.Background()))
	return n, q, mr
}

func TestPublishFetchAck(t *testing.T) {
	n, q, _ := setupQueue(t, time.Minute)
	ctx := context.Background()

	evt := PostCreated{PostID: 11, AuthorID: 2, IsCelebrity: false, Timestamp: 1700000000.5}
	require.True(t, n.PublishPostCreated(ctx, evt))

	msgs, err := q.Fetch(ctx, "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got PostCreated
	require.NoError(t, json.Unmarshal(msgs[0].Body, &got))
	assert.Equal(t, EventTypePostCreated, got.EventType)
	assert.Equal(t, int64(11), got.PostID)
	assert.Equal(t, int64(2), got.AuthorID)
	assert.False(t, got.IsCelebrity)
	assert.InDelta(t, 1700000000.5, got.Timestamp, 1e-6)

	require.NoError(t, q.Ack(ctx, msgs[0].ID))

	// ack 之后既读不到新消息，也不会被重新认领
	msgs, err = q.Fetch(ctx, "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	_, q, _ := setupQueue(t, time.Minute)
	assert.NoError(t, q.EnsureGroup(context.Background()))
	assert.NoError(t, q.EnsureGroup(context.Background()))
}

func TestUnackedEntryIsReclaimed(t *testing.T) {
	n, q, mr := setupQueue(t, 20*time.Millisecond)
	ctx := context.Background()

	require.True(t, n.PublishPostCreated(ctx, PostCreated{PostID: 7, AuthorID: 1}))

	// c1 读走但崩在 ack 之前
	msgs, err := q.Fetch(ctx, "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	mr.FastForward(time.Second)

	// 闲置超过 minIdle 后 c2 可认领同一条
	msgs, err = q.Fetch(ctx, "c2", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(7), decodePostID(t, msgs[0].Body))

	require.NoError(t, q.Ack(ctx, msgs[0].ID))
	msgs, err = q.Fetch(ctx, "c2", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFetchEmptyOnTimeout(t *testing.T) {
	_, q, _ := setupQueue(t, time.Minute)
	msgs, err := q.Fetch(context.Background(), "c1", 10, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func decodePostID(t *testing.T, body []byte) int64 {
	t.Helper()
	var evt PostCreated
	require.NoError(t, json.Unmarshal(body, &evt))
	return evt.PostID
}
