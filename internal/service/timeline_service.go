package service

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/pkg/logger"
)

const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// TimelineResult 合并后的个人时间线。
// HasMore 沿用 len(posts) == limit 的启发式：恰好剩 limit 条时会误报 true，
// 这是有意保留的不精确（换一次 count 查询不值得）。
type TimelineResult struct {
	Posts   []*model.Post `json:"posts"`
	HasMore bool          `json:"has_more"`
	Source  string        `json:"source"`
}

// TimelineService 混合读路径：推缓存 + 大V拉取 + 全量兜底
type TimelineService interface {
	GetTimeline(ctx context.Context, userID int64, limit, offset int) (*TimelineResult, error)
	GetGlobal(ctx context.Context, limit, offset int) ([]*model.Post, error)
}

type timelineService struct {
	timeline   *cache.TimelineCache
	postRepo   repository.PostRepository
	followRepo repository.FollowRepository
	pullLimit  int
}

func NewTimelineService(
	timeline *cache.TimelineCache,
	postRepo repository.PostRepository,
	followRepo repository.FollowRepository,
	celebrityPullLimit int,
) TimelineService {
	if celebrityPullLimit <= 0 {
		celebrityPullLimit = 20
	}
	return &timelineService{
		timeline:   timeline,
		postRepo:   postRepo,
		followRepo: followRepo,
		pullLimit:  celebrityPullLimit,
	}
}

// GetTimeline 读路径：
//  1. 读推缓存（不可用与 absent 同样按 miss 处理，绝不报错）
//  2. 命中则按缓存顺序解析帖子，库里已不存在的 id 静默丢弃
//  3. 无条件拉取所关注大V的最新帖子（大V帖从不进推缓存，命中也不够完整）
//  4. 两步之后仍为空才走全量兜底查询
//  5. 按创建时间倒序归并（同刻按 id 升序）、去重、截断
// 推和拉两条腿并发执行；缓存失败永远退化为兜底，主存储失败才向上抛错。
func (s *timelineService) GetTimeline(ctx context.Context, userID int64, limit, offset int) (*TimelineResult, error) {
	var (
		pushPosts   []*model.Post
		pullPosts   []*model.Post
		cacheServed bool
	)

	var g errgroup.Group
	g.Go(func() error {
		ids, ok := s.timeline.Read(ctx, userID, limit, offset)
		if !ok {
			logger.Info("timeline cache miss", zap.Int64("user_id", userID))
			return nil
		}
		if len(ids) == 0 {
			return nil
		}
		// 缓存窗口非空即算缓存供给，哪怕所有 id 都已过期被丢弃
		cacheServed = true
		posts, err := s.postRepo.ListByIDs(ctx, ids)
		if err != nil {
			return err
		}
		pushPosts = reorder(ids, posts)
		return nil
	})
	g.Go(func() error {
		celebIDs, err := s.followRepo.CelebrityFolloweeIDs(ctx, userID)
		if err != nil {
			return err
		}
		if len(celebIDs) == 0 {
			return nil
		}
		pullPosts, err = s.postRepo.ListByAuthors(ctx, celebIDs, s.pullLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	source := SourceDatabase
	if cacheServed {
		source = SourceCache
	}

	merged := append(pushPosts, pullPosts...)
	if len(merged) == 0 {
		// 真·缓存未命中且无大V内容：全量兜底
		fallback, err := s.postRepo.ListFeedFallback(ctx, userID, offset, limit)
		if err != nil {
			return nil, err
		}
		merged = fallback
		source = SourceDatabase
	}

	merged = dedupe(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return &TimelineResult{
		Posts:   merged,
		HasMore: len(merged) == limit,
		Source:  source,
	}, nil
}

func (s *timelineService) GetGlobal(ctx context.Context, limit, offset int) ([]*model.Post, error) {
	return s.postRepo.ListGlobal(ctx, offset, limit)
}

// reorder 按缓存给出的 id 顺序重排查库结果；缺失的 id 直接跳过
func reorder(ids []int64, posts []*model.Post) []*model.Post {
	byID := make(map[int64]*model.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// dedupe 保序去重：推缓存与大V拉取可能覆盖同一条帖子
func dedupe(posts []*model.Post) []*model.Post {
	seen := make(map[int64]struct{}, len(posts))
	out := posts[:0]
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
