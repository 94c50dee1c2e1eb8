package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/internal/service"
)

type adminFixture struct {
	db       *gorm.DB
	timeline *cache.TimelineCache
	router   *gin.Engine
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tl := cache.New(client, 1000)
	notifier := events.NewNotifier(client, "pulse:events:posts")
	queue := events.NewQueue(client, "pulse:events:posts", "fanout", time.Minute)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)

	userSvc := service.NewUserService(userRepo, []byte("test-secret"), time.Hour)
	relSvc := service.NewRelationshipService(db, userRepo, 100)
	postSvc := service.NewPostService(postRepo, userRepo, tl, notifier)
	timelineSvc := service.NewTimelineService(tl, postRepo, followRepo, 20)
	worker := service.NewFanoutWorker(queue, tl, followRepo, 10, 20*time.Millisecond)

	h := New(userSvc, relSvc, postSvc, timelineSvc, tl, worker, &MetricsDeps{
		DB: db, UserRepo: userRepo, PostRepo: postRepo, FollowRepo: followRepo,
	}, 100)

	r := gin.New()
	r.DELETE("/admin/cache/timelines", h.ClearTimelines)
	r.POST("/admin/cache/backfill/:user_id", h.BackfillAuthorTimelines)
	return &adminFixture{db: db, timeline: tl, router: r}
}

func TestBackfillRouteRebuildsFollowerTimelines(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	author := &model.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	fan := &model.User{Username: "bob", Email: "bob@example.com", Password: "x"}
	require.NoError(t, f.db.Create(author).Error)
	require.NoError(t, f.db.Create(fan).Error)
	require.NoError(t, repository.NewFollowRepository(f.db).Create(ctx, fan.ID, author.ID))

	base := time.Now().Truncate(time.Second)
	p1 := &model.Post{AuthorID: author.ID, Content: "old", CreatedAt: base.Add(-time.Hour)}
	p2 := &model.Post{AuthorID: author.ID, Content: "new", CreatedAt: base}
	require.NoError(t, f.db.Create(p1).Error)
	require.NoError(t, f.db.Create(p2).Error)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/admin/cache/backfill/%d", author.ID), nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backfilled":2`)

	ids, ok := f.timeline.Read(ctx, fan.ID, 10, 0)
	require.True(t, ok)
	assert.Equal(t, []int64{p2.ID, p1.ID}, ids)
}

func TestBackfillRouteRejectsBadUserID(t *testing.T) {
	f := newAdminFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/cache/backfill/notanumber", nil)
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearTimelinesRoute(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	f.timeline.Put(ctx, 1, 100, 1)
	f.timeline.Put(ctx, 2, 100, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/admin/cache/timelines", nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":2`)

	_, ok := f.timeline.Read(ctx, 1, 10, 0)
	assert.False(t, ok)
}
