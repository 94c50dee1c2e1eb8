package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/pkg/logger"
)

// TimelineCache 以每用户一个 ZSET 维护推送式时间线：
// member = post id，score = 发帖时间（秒级浮点时间戳）。
// 所有操作在后端不可用时退化为显式的 miss/false，从不向调用方抛错。
type TimelineCache struct {
	client   *redis.Client
	capacity int
}

func New(client *redis.Client, capacity int) *TimelineCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &TimelineCache{client: client, capacity: capacity}
}

func key(userID int64) string {
	return fmt.Sprintf("timeline:%d", userID)
}

// Available 存活探测；调用方用它而不是靠错误判断后端状态
func (c *TimelineCache) Available(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// Put 写入 (post, score) 并裁剪到容量上限，保留分值最高的 capacity 条。
// 同 member 同 score 重复写入等效于一次写入。
func (c *TimelineCache) Put(ctx context.Context, userID, postID int64, score float64) bool {
	k := key(userID)
	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: score, Member: strconv.FormatInt(postID, 10)})
	pipe.ZRemRangeByRank(ctx, k, 0, int64(-(c.capacity + 1)))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("timeline cache put failed",
			zap.Int64("user_id", userID), zap.Int64("post_id", postID), zap.Error(err))
		return false
	}
	return true
}

// Read 返回分值倒序的 post id 窗口。
// ok == false 表示 miss：后端不可用，或 key 从未被写入（absent）。
// key 存在但窗口为空时返回 ([], true)，与 absent 严格区分。
func (c *TimelineCache) Read(ctx context.Context, userID int64, limit, offset int) ([]int64, bool) {
	k := key(userID)
	exists, err := c.client.Exists(ctx, k).Result()
	if err != nil {
		logger.Warn("timeline cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	if exists == 0 {
		return nil, false
	}
	members, err := c.client.ZRevRange(ctx, k, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		logger.Warn("timeline cache range failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// 脏 member 跳过，不让单条坏数据拖垮整页
			continue
		}
		ids = append(ids, id)
	}
	return ids, true
}

// Clear 删除整个 key，回到 absent 状态
func (c *TimelineCache) Clear(ctx context.Context, userID int64) bool {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		logger.Warn("timeline cache clear failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

// ClearAll 管理操作：SCAN 所有 timeline:* 并删除，返回删掉的 key 数
func (c *TimelineCache) ClearAll(ctx context.Context) (int64, bool) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, "timeline:*", 200).Result()
		if err != nil {
			logger.Warn("timeline cache scan failed", zap.Error(err))
			return deleted, false
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				logger.Warn("timeline cache bulk delete failed", zap.Error(err))
				return deleted, false
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, true
		}
	}
}
