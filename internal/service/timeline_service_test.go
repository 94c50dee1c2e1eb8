package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
)

type timelineFixture struct {
	db       *gorm.DB
	timeline *cache.TimelineCache
	svc      TimelineService
}

func newTimelineFixture(t *testing.T) (*timelineFixture, func()) {
	t.Helper()
	db := newTestDB(t)
	client, mr := newTestRedis(t)
	tl := cache.New(client, 1000)
	svc := NewTimelineService(tl, repository.NewPostRepository(db), repository.NewFollowRepository(db), 20)
	return &timelineFixture{db: db, timeline: tl, svc: svc}, mr.Close
}

func postIDs(posts []*model.Post) []int64 {
	out := make([]int64, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestTimelineServesFromCacheInOrder(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, author.ID)

	base := time.Now().Truncate(time.Second)
	var want []int64
	for i := 0; i < 3; i++ {
		p := seedPost(t, f.db, author.ID, fmt.Sprintf("post %d", i), base.Add(time.Duration(i)*time.Second))
		f.timeline.Put(ctx, reader.ID, p.ID, p.Score())
		want = append([]int64{p.ID}, want...) // 新帖在前
	}

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, want, postIDs(res.Posts))
	assert.False(t, res.HasMore)
}

func TestTimelineDropsDeletedPostsFromCache(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	p := seedPost(t, f.db, author.ID, "kept", time.Now())
	f.timeline.Put(ctx, reader.ID, p.ID, p.Score())
	// 库里不存在的 id：静默跳过
	f.timeline.Put(ctx, reader.ID, 99999, p.Score()+1)

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, postIDs(res.Posts))
}

func TestTimelineSourceIsCacheForStaleOnlyWindow(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	celeb := seedUser(t, f.db, "megastar", true)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, celeb.ID)
	pulled := seedPost(t, f.db, celeb.ID, "pulled", time.Now())

	// 缓存窗口非空但全是已删除的 id：source 仍按缓存供给上报
	f.timeline.Put(ctx, reader.ID, 99999, 1)

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, []int64{pulled.ID}, postIDs(res.Posts))
}

func TestTimelineAlwaysMergesCelebrityPosts(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	celeb := seedUser(t, f.db, "megastar", true)
	normal := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, celeb.ID)
	seedFollow(t, f.db, reader.ID, normal.ID)

	base := time.Now().Truncate(time.Second)
	pushed := seedPost(t, f.db, normal.ID, "pushed", base.Add(-time.Minute))
	pulled := seedPost(t, f.db, celeb.ID, "pulled", base)

	// 大V帖从不进推缓存；缓存命中时依然要合并进来
	f.timeline.Put(ctx, reader.ID, pushed.ID, pushed.Score())

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, []int64{pulled.ID, pushed.ID}, postIDs(res.Posts))
}

func TestTimelineDeduplicatesMergedPosts(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	celeb := seedUser(t, f.db, "megastar", true)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, celeb.ID)

	p := seedPost(t, f.db, celeb.ID, "both legs", time.Now())
	// 阈值翻转前残留在推缓存里，同时又会被拉取路径覆盖
	f.timeline.Put(ctx, reader.ID, p.ID, p.Score())

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, postIDs(res.Posts))
}

func TestTimelineFallsBackToDatabaseOnCacheMiss(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	stranger := seedUser(t, f.db, "eve", false)
	seedFollow(t, f.db, reader.ID, author.ID)

	base := time.Now().Truncate(time.Second)
	own := seedPost(t, f.db, reader.ID, "mine", base.Add(time.Second))
	followed := seedPost(t, f.db, author.ID, "theirs", base)
	seedPost(t, f.db, stranger.ID, "unrelated", base.Add(2*time.Second))

	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Equal(t, []int64{own.ID, followed.ID}, postIDs(res.Posts))
}

func TestTimelineDegradesWhenCacheUnavailable(t *testing.T) {
	f, closeRedis := newTimelineFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, author.ID)
	p := seedPost(t, f.db, author.ID, "still visible", time.Now())
	f.timeline.Put(ctx, reader.ID, p.ID, p.Score())

	closeRedis()

	// 缓存整个不可用：按 miss 处理走兜底，绝不报错
	res, err := f.svc.GetTimeline(ctx, reader.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Equal(t, []int64{p.ID}, postIDs(res.Posts))
}

func TestTimelineHasMoreHeuristic(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	author := seedUser(t, f.db, "alice", false)
	reader := seedUser(t, f.db, "bob", false)
	seedFollow(t, f.db, reader.ID, author.ID)

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		p := seedPost(t, f.db, author.ID, fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second))
		f.timeline.Put(ctx, reader.ID, p.ID, p.Score())
	}

	res, err := f.svc.GetTimeline(ctx, reader.ID, 3, 0)
	require.NoError(t, err)
	assert.Len(t, res.Posts, 3)
	assert.True(t, res.HasMore)

	res, err = f.svc.GetTimeline(ctx, reader.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, res.Posts, 5)
	assert.False(t, res.HasMore)
}

func TestGlobalTimeline(t *testing.T) {
	f, _ := newTimelineFixture(t)
	ctx := context.Background()

	a := seedUser(t, f.db, "alice", false)
	b := seedUser(t, f.db, "bob", false)
	base := time.Now().Truncate(time.Second)
	p1 := seedPost(t, f.db, a.ID, "first", base)
	p2 := seedPost(t, f.db, b.ID, "second", base.Add(time.Second))

	posts, err := f.svc.GetGlobal(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p2.ID, p1.ID}, postIDs(posts))
}
