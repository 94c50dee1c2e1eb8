package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))
	return db
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func seedUser(t *testing.T, db *gorm.DB, username string, celebrity bool) *model.User {
	t.Helper()
	u := &model.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "x",
		IsCelebrity: celebrity,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedFollow(t *testing.T, db *gorm.DB, followerID, followeeID int64) {
	t.Helper()
	require.NoError(t, repository.NewFollowRepository(db).Create(context.Background(), followerID, followeeID))
}

func seedPost(t *testing.T, db *gorm.DB, authorID int64, content string, createdAt time.Time) *model.Post {
	t.Helper()
	p := &model.Post{AuthorID: authorID, Content: content, CreatedAt: createdAt}
	require.NoError(t, db.Create(p).Error)
	return p
}
