package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*model.User, error)
	// ListFollowers / ListFollowing 连表查用户资料页
	ListFollowers(ctx context.Context, userID int64, offset, limit int) ([]*model.User, error)
	ListFollowing(ctx context.Context, userID int64, offset, limit int) ([]*model.User, error)
	Count(ctx context.Context) (int64, error)
	CountCelebrities(ctx context.Context) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *userRepository) ListFollowers(ctx context.Context, userID int64, offset, limit int) ([]*model.User, error) {
	var res []*model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followee_id = ?", userID).
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *userRepository) ListFollowing(ctx context.Context, userID int64, offset, limit int) ([]*model.User, error) {
	var res []*model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.followee_id = users.id").
		Where("follows.follower_id = ?", userID).
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&cnt).Error
	return cnt, err
}

func (r *userRepository) CountCelebrities(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("is_celebrity = ?", true).Count(&cnt).Error
	return cnt, err
}
