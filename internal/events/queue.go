package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/pkg/logger"
)

// Message 一条待处理的 stream entry
type Message struct {
	ID   string
	Body []byte
}

// Queue 事件通道的消费端：consumer group + 显式 ack。
// 至少一次投递：未 ack 的 entry 留在 pending，超过 minIdle 会被
// 任意消费者通过 XAUTOCLAIM 认领重投。
type Queue struct {
	client  *redis.Client
	stream  string
	group   string
	minIdle time.Duration
}

func NewQueue(client *redis.Client, stream, group string, minIdle time.Duration) *Queue {
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	return &Queue{client: client, stream: stream, group: group, minIdle: minIdle}
}

// EnsureGroup 幂等建组（stream 不存在时一并创建）
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// Fetch 先认领闲置过久的 pending entry，再长轮询读新消息。
// block 超时无消息返回空切片，不算错误。
func (q *Queue) Fetch(ctx context.Context, consumer string, count int, block time.Duration) ([]Message, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.minIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("xautoclaim failed", zap.Error(err))
	}
	if len(claimed) > 0 {
		return toMessages(claimed), nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // long poll timed out, caller loops
	}
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, s := range streams {
		out = append(out, toMessages(s.Messages)...)
	}
	return out, nil
}

// Ack 确认处理完成，把 entry 移出 pending
func (q *Queue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.client.XAck(ctx, q.stream, q.group, ids...).Err()
}

func toMessages(entries []redis.XMessage) []Message {
	out := make([]Message, 0, len(entries))
	for _, m := range entries {
		body, _ := m.Values[bodyField].(string)
		out = append(out, Message{ID: m.ID, Body: []byte(body)})
	}
	return out
}
