package model

import "time"

// Post 内容主体，创建后不可变；排序键为 created_at（同值按 id 升序）
type Post struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	AuthorID  int64     `json:"author_id" gorm:"index:idx_post_author_created;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_post_author_created"`

	Author *User `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}

func (Post) TableName() string { return "posts" }

// Score 时间线缓存分值：创建时间的秒级时间戳（浮点）
func (p *Post) Score() float64 {
	return float64(p.CreatedAt.UnixNano()) / 1e9
}
