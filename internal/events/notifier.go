package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/pkg/logger"
)

// bodyField stream entry 中存放 JSON 负载的字段名
const bodyField = "body"

// Notifier 发布「已落库的发帖事实」到 redis stream。
// 对生产方是 fire-and-forget：失败只返回 false，由调用方走降级路径。
type Notifier struct {
	client *redis.Client
	stream string
}

func NewNotifier(client *redis.Client, stream string) *Notifier {
	return &Notifier{client: client, stream: stream}
}

// Available 通道存活探测
func (n *Notifier) Available(ctx context.Context) bool {
	return n.client.Ping(ctx).Err() == nil
}

// PublishPostCreated 序列化并 XADD；失败返回 false（不报错）
func (n *Notifier) PublishPostCreated(ctx context.Context, evt PostCreated) bool {
	body, err := evt.Marshal()
	if err != nil {
		logger.Error("marshal post_created event", zap.Error(err))
		return false
	}
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{bodyField: string(body)},
	}).Err()
	if err != nil {
		logger.Warn("publish post_created failed",
			zap.Int64("post_id", evt.PostID), zap.Error(err))
		return false
	}
	return true
}
