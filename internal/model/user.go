package model

import "time"

// User 用户（含冗余的关注计数与大V标记）
type User struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username       string    `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Email          string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password       string    `json:"-" gorm:"type:varchar(255);not null"`
	FullName       string    `json:"full_name" gorm:"type:varchar(100)"`
	Bio            string    `json:"bio" gorm:"type:text"`
	// IsCelebrity 恒等于 follower_count >= threshold，随 follow/unfollow 同事务更新
	IsCelebrity    bool      `json:"is_celebrity" gorm:"index;not null;default:false"`
	FollowerCount  int64     `json:"follower_count" gorm:"index;not null;default:0"`
	FollowingCount int64     `json:"following_count" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
