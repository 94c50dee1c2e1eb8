package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/repository"
)

type postFixture struct {
	db        *gorm.DB
	timeline  *cache.TimelineCache
	streamLen func() int
	closeBus  func()
	svc       PostService
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	db := newTestDB(t)
	cacheClient, _ := newTestRedis(t)
	// 事件通道与缓存各用一个实例，便于单独打挂通道
	busClient, busMR := newTestRedis(t)

	tl := cache.New(cacheClient, 1000)
	n := events.NewNotifier(busClient, testStream)
	svc := NewPostService(repository.NewPostRepository(db), repository.NewUserRepository(db), tl, n)
	return &postFixture{
		db:       db,
		timeline: tl,
		streamLen: func() int {
			entries, err := busMR.Stream(testStream)
			if err != nil {
				return 0
			}
			return len(entries)
		},
		closeBus: busMR.Close,
		svc:      svc,
	}
}

func TestCreatePostPublishesEvent(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	res, err := f.svc.Create(ctx, author.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, ModePublished, res.Mode)
	require.NotZero(t, res.Post.ID)
	assert.Equal(t, 1, f.streamLen())

	// 扇出交给 worker，同步路径不直写任何缓存
	_, ok := f.timeline.Read(ctx, author.ID, 10, 0)
	assert.False(t, ok)
}

func TestCreatePostCelebritySkipsChannel(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "megastar", true)
	res, err := f.svc.Create(ctx, author.ID, "broadcast")
	require.NoError(t, err)
	assert.Equal(t, ModeCelebrity, res.Mode)
	assert.Equal(t, 0, f.streamLen(), "celebrity posts never hit the event channel")

	ids, ok := f.timeline.Read(ctx, author.ID, 10, 0)
	require.True(t, ok)
	assert.Equal(t, []int64{res.Post.ID}, ids)
}

func TestCreatePostDegradesWhenChannelDown(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	f.closeBus()

	res, err := f.svc.Create(ctx, author.ID, "still lands")
	require.NoError(t, err, "channel outage must not fail the write")
	assert.Equal(t, ModeDegraded, res.Mode)

	// 降级只保作者自己的时间线
	ids, ok := f.timeline.Read(ctx, author.ID, 10, 0)
	require.True(t, ok)
	assert.Equal(t, []int64{res.Post.ID}, ids)
}

func TestCreatePostUnknownAuthor(t *testing.T) {
	f := newPostFixture(t)
	_, err := f.svc.Create(context.Background(), 424242, "ghost")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
