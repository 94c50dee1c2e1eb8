package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/pkg/logger"
)

// FanoutWorker 消费 post_created 事件并把 post id 写进每个粉丝的时间线缓存。
// 多实例可作为同一 consumer group 并发运行；重复投递无害（缓存写幂等）。
type FanoutWorker struct {
	queue      *events.Queue
	timeline   *cache.TimelineCache
	followRepo repository.FollowRepository
	pageSize   int
	batchSize  int
	block      time.Duration

	processed atomic.Int64
	dropped   atomic.Int64
	partial   atomic.Int64 // per-follower write failures, counted not fatal
	metricsCh chan time.Duration
}

func NewFanoutWorker(
	queue *events.Queue,
	timeline *cache.TimelineCache,
	followRepo repository.FollowRepository,
	batchSize int,
	block time.Duration,
) *FanoutWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &FanoutWorker{
		queue:      queue,
		timeline:   timeline,
		followRepo: followRepo,
		pageSize:   500,
		batchSize:  batchSize,
		block:      block,
		metricsCh:  make(chan time.Duration, 65536),
	}
}

// Metrics 每处理完一条事件发送一次「事件时间戳 → 扇出完成」耗时
func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

func (w *FanoutWorker) Processed() int64 { return w.processed.Load() }

// Start 启动 consumers 个消费者；返回停止函数，等待在途消息处理完
func (w *FanoutWorker) Start(ctx context.Context, consumers int) (func(context.Context) error, error) {
	if consumers <= 0 {
		consumers = 1
	}
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer group: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("fanout-%d", i)
		go func() {
			defer wg.Done()
			w.loop(loopCtx, consumer)
		}()
	}
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}, nil
}

func (w *FanoutWorker) loop(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgs, err := w.queue.Fetch(ctx, consumer, w.batchSize, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("fetch events failed", zap.String("consumer", consumer), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

// handle 单条消息的处理链：收到 -> 校验 -> (跳过|扇出) -> 应用 -> ack。
// 坏消息立即 ack 丢弃；主存储不可用时不 ack，留待重投。
func (w *FanoutWorker) handle(ctx context.Context, msg events.Message) {
	var evt events.PostCreated
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		logger.Warn("malformed event dropped", zap.String("msg_id", msg.ID), zap.Error(err))
		w.dropped.Add(1)
		w.ack(ctx, msg.ID)
		return
	}
	if evt.EventType != events.EventTypePostCreated {
		logger.Warn("unknown event type dropped",
			zap.String("msg_id", msg.ID), zap.String("event_type", evt.EventType))
		w.dropped.Add(1)
		w.ack(ctx, msg.ID)
		return
	}
	if evt.PostID == 0 || evt.AuthorID == 0 {
		logger.Warn("invalid post_created payload dropped", zap.String("msg_id", msg.ID))
		w.dropped.Add(1)
		w.ack(ctx, msg.ID)
		return
	}

	if err := w.apply(ctx, evt); err != nil {
		// 不 ack：留在 pending 等待重投
		logger.Error("fanout apply failed, leaving for redelivery",
			zap.String("msg_id", msg.ID), zap.Int64("post_id", evt.PostID), zap.Error(err))
		return
	}

	w.processed.Add(1)
	w.ack(ctx, msg.ID)
	if evt.Timestamp > 0 {
		lat := time.Since(time.Unix(0, int64(evt.Timestamp*1e9)))
		select {
		case w.metricsCh <- lat:
		default:
		}
	}
}

func (w *FanoutWorker) apply(ctx context.Context, evt events.PostCreated) error {
	// 只认事件里的快照标记，绝不回查实时 celebrity 状态
	if evt.IsCelebrity {
		logger.Info("celebrity post, skipping follower fanout", zap.Int64("post_id", evt.PostID))
		w.timeline.Put(ctx, evt.AuthorID, evt.PostID, evt.Timestamp)
		return nil
	}

	var (
		offset   int
		total    int
		failures int
	)
	for {
		followerIDs, err := w.followRepo.ListFollowerIDs(ctx, evt.AuthorID, offset, w.pageSize)
		if err != nil {
			// 主存储读失败是不可恢复的一步：整条事件留待重投
			return fmt.Errorf("resolve followers: %w", err)
		}
		if len(followerIDs) == 0 {
			break
		}
		for _, fid := range followerIDs {
			if !w.timeline.Put(ctx, fid, evt.PostID, evt.Timestamp) {
				failures++
			}
		}
		total += len(followerIDs)
		if len(followerIDs) < w.pageSize {
			break
		}
		offset += w.pageSize
	}

	// 作者自己的时间线总是要写
	w.timeline.Put(ctx, evt.AuthorID, evt.PostID, evt.Timestamp)

	if failures > 0 {
		// 粉丝级失败只计数，不阻塞整条事件
		w.partial.Add(int64(failures))
		logger.Warn("partial fanout failures",
			zap.Int64("post_id", evt.PostID), zap.Int("failed", failures), zap.Int("total", total))
	}
	logger.Info("fanout applied",
		zap.Int64("post_id", evt.PostID), zap.Int64("author_id", evt.AuthorID), zap.Int("followers", total))
	return nil
}

func (w *FanoutWorker) ack(ctx context.Context, id string) {
	if err := w.queue.Ack(ctx, id); err != nil {
		logger.Warn("ack failed", zap.String("msg_id", id), zap.Error(err))
	}
}

// BackfillAuthor 把某作者的历史帖子重新扇出（缓存重建的管理操作）。
// 走与事件相同的 apply 路径，幂等。
func (w *FanoutWorker) BackfillAuthor(ctx context.Context, postRepo repository.PostRepository, authorID int64, limit int) (int, error) {
	posts, err := postRepo.ListByAuthor(ctx, authorID, 0, limit)
	if err != nil {
		return 0, err
	}
	for _, p := range posts {
		evt := events.PostCreated{
			EventType: events.EventTypePostCreated,
			PostID:    p.ID,
			AuthorID:  authorID,
			Timestamp: p.Score(),
		}
		if err := w.apply(ctx, evt); err != nil {
			return 0, err
		}
	}
	return len(posts), nil
}
