package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/pkg/logger"
)

// PublishMode 标记发帖走了哪条投递路径，测试与调用方可观测
type PublishMode string

const (
	// ModePublished 事件已进入通道，由 fan-out worker 异步扇出
	ModePublished PublishMode = "published"
	// ModeDegraded 通道不可用，仅直写作者自己的缓存（已知一致性缺口：
	// 粉丝缓存在下一次全量重建前看不到这条帖子）
	ModeDegraded PublishMode = "degraded"
	// ModeCelebrity 大V帖不扇出，读取时走拉取路径
	ModeCelebrity PublishMode = "celebrity"
)

type CreatePostResult struct {
	Post *model.Post
	Mode PublishMode
}

// PostService 发帖：落库 → 快照 celebrity 标记 → 发事件或降级直写
type PostService interface {
	Create(ctx context.Context, authorID int64, content string) (*CreatePostResult, error)
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	ListByAuthor(ctx context.Context, authorID int64, page, pageSize int) ([]*model.Post, error)
}

type postService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	timeline *cache.TimelineCache
	notifier *events.Notifier
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	timeline *cache.TimelineCache,
	notifier *events.Notifier,
) PostService {
	return &postService{postRepo: postRepo, userRepo: userRepo, timeline: timeline, notifier: notifier}
}

func (s *postService) Create(ctx context.Context, authorID int64, content string) (*CreatePostResult, error) {
	author, err := s.userRepo.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	post := &model.Post{AuthorID: authorID, Content: content}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	// 发帖瞬间的快照：后续阈值翻转不影响这条帖子的扇出策略
	isCelebrity := author.IsCelebrity
	score := post.Score()

	if isCelebrity {
		// 大V不做粉丝扇出，但自己的时间线要有自己的帖子
		s.timeline.Put(ctx, authorID, post.ID, score)
		return &CreatePostResult{Post: post, Mode: ModeCelebrity}, nil
	}

	evt := events.PostCreated{
		EventType:   events.EventTypePostCreated,
		PostID:      post.ID,
		AuthorID:    authorID,
		IsCelebrity: isCelebrity,
		Timestamp:   score,
	}
	if s.notifier.PublishPostCreated(ctx, evt) {
		return &CreatePostResult{Post: post, Mode: ModePublished}, nil
	}

	// 降级路径：显式、有告警，不混进正常流程
	logger.Warn("event channel unavailable, direct timeline write for author only",
		zap.Int64("post_id", post.ID), zap.Int64("author_id", authorID))
	s.timeline.Put(ctx, authorID, post.ID, score)
	return &CreatePostResult{Post: post, Mode: ModeDegraded}, nil
}

func (s *postService) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	return s.postRepo.GetByID(ctx, id)
}

func (s *postService) ListByAuthor(ctx context.Context, authorID int64, page, pageSize int) ([]*model.Post, error) {
	offset, limit := pageWindow(page, pageSize)
	return s.postRepo.ListByAuthor(ctx, authorID, offset, limit)
}
