package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
)

var (
	ErrFollowSelf   = errors.New("cannot follow self")
	ErrNotFollowing = errors.New("not following")
)

// RelationshipService 关系链服务。
// 关注/取关与计数更新、celebrity 标记重算在同一个事务内落库：
// 事务提交后恒有 is_celebrity == (follower_count >= threshold)。
type RelationshipService interface {
	Follow(ctx context.Context, fromUserID, toUserID int64) error
	Unfollow(ctx context.Context, fromUserID, toUserID int64) error
	ListFollowers(ctx context.Context, userID int64, page, pageSize int) ([]*model.User, error)
	ListFollowing(ctx context.Context, userID int64, page, pageSize int) ([]*model.User, error)
}

type relationshipService struct {
	db        *gorm.DB
	userRepo  repository.UserRepository
	threshold int64
}

func NewRelationshipService(db *gorm.DB, userRepo repository.UserRepository, celebrityThreshold int) RelationshipService {
	return &relationshipService{db: db, userRepo: userRepo, threshold: int64(celebrityThreshold)}
}

func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID int64) error {
	if fromUserID == toUserID {
		return ErrFollowSelf
	}
	if _, err := s.userRepo.GetByID(ctx, toUserID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewFollowRepository(tx).Create(ctx, fromUserID, toUserID); err != nil {
			return err
		}
		if err := tx.Model(&model.User{}).Where("id = ?", fromUserID).
			Update("following_count", gorm.Expr("following_count + 1")).Error; err != nil {
			return err
		}
		return s.applyFollowerDelta(ctx, tx, toUserID, +1)
	})
}

func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := repository.NewFollowRepository(tx).Delete(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFollowing
		}
		if err := tx.Model(&model.User{}).Where("id = ? AND following_count > 0", fromUserID).
			Update("following_count", gorm.Expr("following_count - 1")).Error; err != nil {
			return err
		}
		return s.applyFollowerDelta(ctx, tx, toUserID, -1)
	})
}

// applyFollowerDelta 原子更新粉丝数并重算 celebrity 标记。
// 无滞回区间：账号可以在阈值两侧来回翻转，发帖时的快照保证在途事件不受影响。
func (s *relationshipService) applyFollowerDelta(ctx context.Context, tx *gorm.DB, userID int64, delta int64) error {
	expr := gorm.Expr("follower_count + ?", delta)
	if delta < 0 {
		// 防御负计数
		expr = gorm.Expr("CASE WHEN follower_count > 0 THEN follower_count - 1 ELSE 0 END")
	}
	if err := tx.Model(&model.User{}).Where("id = ?", userID).
		Update("follower_count", expr).Error; err != nil {
		return err
	}
	return tx.Model(&model.User{}).Where("id = ?", userID).
		Update("is_celebrity", gorm.Expr("follower_count >= ?", s.threshold)).Error
}

func (s *relationshipService) ListFollowers(ctx context.Context, userID int64, page, pageSize int) ([]*model.User, error) {
	offset, limit := pageWindow(page, pageSize)
	return s.userRepo.ListFollowers(ctx, userID, offset, limit)
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID int64, page, pageSize int) ([]*model.User, error) {
	offset, limit := pageWindow(page, pageSize)
	return s.userRepo.ListFollowing(ctx, userID, offset, limit)
}

func pageWindow(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return (page - 1) * pageSize, pageSize
}
