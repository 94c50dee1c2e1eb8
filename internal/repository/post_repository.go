package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/model"
)

var ErrPostNotFound = errors.New("post not found")

type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	// ListByIDs 按 id 集合取帖子，不保证顺序；调用方按缓存顺序重排
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Post, error)
	// ListByAuthors 指定作者集合的最新帖子，按创建时间倒序（大V拉取路径）
	ListByAuthors(ctx context.Context, authorIDs []int64, limit int) ([]*model.Post, error)
	ListByAuthor(ctx context.Context, authorID int64, offset, limit int) ([]*model.Post, error)
	// ListFeedFallback 全量兜底：userID 自己或其关注者的帖子，倒序分页
	ListFeedFallback(ctx context.Context, userID int64, offset, limit int) ([]*model.Post, error)
	ListGlobal(ctx context.Context, offset, limit int) ([]*model.Post, error)
	Count(ctx context.Context) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, p *model.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	var p model.Post
	err := r.db.WithContext(ctx).Preload("Author").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).Preload("Author").Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []int64, limit int) ([]*model.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).Preload("Author").
		Where("author_id IN ?", authorIDs).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID int64, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).Preload("Author").
		Where("author_id = ?", authorID).
		Order("created_at DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListFeedFallback(ctx context.Context, userID int64, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	sub := r.db.Model(&model.Follow{}).Select("followee_id").Where("follower_id = ?", userID)
	err := r.db.WithContext(ctx).Preload("Author").
		Where("author_id = ? OR author_id IN (?)", userID, sub).
		Order("created_at DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListGlobal(ctx context.Context, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).Preload("Author").
		Order("created_at DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Count(&cnt).Error
	return cnt, err
}
