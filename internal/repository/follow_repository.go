package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/pulse/internal/model"
)

// ErrDuplicateFollow 同一对 (follower, followee) 重复关注
var ErrDuplicateFollow = errors.New("already following")

type FollowRepository interface {
	Create(ctx context.Context, followerID, followeeID int64) error
	Delete(ctx context.Context, followerID, followeeID int64) (bool, error)
	Exists(ctx context.Context, followerID, followeeID int64) (bool, error)
	// ListFollowerIDs 分页返回关注 followeeID 的用户 id（扇出的读路径）
	ListFollowerIDs(ctx context.Context, followeeID int64, offset, limit int) ([]int64, error)
	ListFolloweeIDs(ctx context.Context, followerID int64, offset, limit int) ([]int64, error)
	// CelebrityFolloweeIDs 返回 followerID 关注的、当前为大V的用户 id
	CelebrityFolloweeIDs(ctx context.Context, followerID int64) ([]int64, error)
	Count(ctx context.Context) (int64, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) Create(ctx context.Context, followerID, followeeID int64) error {
	f := &model.Follow{ID: uuid.New().String(), FollowerID: followerID, FolloweeID: followeeID}
	// 冲突时不落行；RowsAffected == 0 即已存在，向上抛冲突
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateFollow
	}
	return nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followeeID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&model.Follow{})
	return res.RowsAffected > 0, res.Error
}

func (r *followRepository) Exists(ctx context.Context, followerID, followeeID int64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) ListFollowerIDs(ctx context.Context, followeeID int64, offset, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Select("follower_id").
		Where("followee_id = ?", followeeID).
		Order("created_at").
		Offset(offset).Limit(limit).
		Scan(&ids).Error
	return ids, err
}

func (r *followRepository) ListFolloweeIDs(ctx context.Context, followerID int64, offset, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Select("followee_id").
		Where("follower_id = ?", followerID).
		Order("created_at").
		Offset(offset).Limit(limit).
		Scan(&ids).Error
	return ids, err
}

func (r *followRepository) CelebrityFolloweeIDs(ctx context.Context, followerID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("users.id").
		Joins("JOIN follows ON follows.followee_id = users.id").
		Where("follows.follower_id = ? AND users.is_celebrity = ?", followerID, true).
		Scan(&ids).Error
	return ids, err
}

func (r *followRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Follow{}).Count(&cnt).Error
	return cnt, err
}
