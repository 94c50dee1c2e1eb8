package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/pulse/config"
	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/internal/service"
	"github.com/d60-Lab/pulse/pkg/database"
	"github.com/d60-Lab/pulse/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	logger.Init("development", "warn")
	db := must(database.InitDB(cfg))
	must(0, database.Migrate(db))

	// params
	N := envInt("N", 5000)              // followers of the author
	POSTS := envInt("POSTS", 100)       // posts to publish
	CONSUMERS := envInt("CONSUMERS", 4) // fanout consumers

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	timeline := cache.New(client, cfg.Timeline.CacheCapacity)
	notifier := events.NewNotifier(client, cfg.Queue.Stream)
	queue := events.NewQueue(client, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.MinIdle)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)
	relSvc := service.NewRelationshipService(db, userRepo, cfg.Timeline.CelebrityThreshold)
	postSvc := service.NewPostService(postRepo, userRepo, timeline, notifier)

	// clean state for a reproducible run (ok for local bench)
	_ = db.Exec("DELETE FROM follows").Error
	_ = db.Exec("DELETE FROM posts").Error
	_ = db.Exec("DELETE FROM users").Error
	_ = client.FlushDB(ctx).Err()

	// seed one author and N followers
	author := model.User{Username: "author0", Email: "author0@example.com", Password: "p"}
	must(0, db.Create(&author).Error)
	followers := make([]model.User, N)
	for i := 0; i < N; i++ {
		followers[i] = model.User{Username: fmt.Sprintf("u%06d", i), Email: fmt.Sprintf("u%06d@example.com", i), Password: "p"}
	}
	must(0, db.CreateInBatches(&followers, 1000).Error)
	for i := 0; i < N; i++ {
		if err := relSvc.Follow(ctx, followers[i].ID, author.ID); err != nil {
			panic(err)
		}
	}

	// start fanout workers
	worker := service.NewFanoutWorker(queue, timeline, followRepo, cfg.Queue.BatchSize, time.Second)
	stop := must(worker.Start(ctx, CONSUMERS))
	defer stop(context.Background())

	// publish POSTS
	pubDurations := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		if _, err := postSvc.Create(ctx, author.ID, fmt.Sprintf("hello %d", i)); err != nil {
			panic(err)
		}
		pubDurations = append(pubDurations, time.Since(st))
	}

	// collect landing metrics
	land := make([]time.Duration, 0, POSTS)
	timeout := time.After(2 * time.Minute)
	for len(land) < POSTS {
		select {
		case d := <-worker.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for fanout metrics: got=%d want=%d\n", len(land), POSTS)
			goto PRINT
		}
	}

PRINT:
	var pubSum time.Duration
	for _, d := range pubDurations {
		pubSum += d
	}
	fmt.Printf("N=%d POSTS=%d CONSUMERS=%d\n", N, POSTS, CONSUMERS)
	fmt.Printf("Publish latency: avg=%v p95=%v p99=%v\n", pubSum/time.Duration(len(pubDurations)), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	var landSum time.Duration
	for _, d := range land {
		landSum += d
	}
	if len(land) > 0 {
		fmt.Printf("Fanout landing (event->applied): samples=%d avg=%v p95=%v p99=%v\n", len(land), landSum/time.Duration(len(land)), pct(land, 0.95), pct(land, 0.99))
	}

	// one follower's cached timeline read
	if ids, ok := timeline.Read(ctx, followers[0].ID, 50, 0); ok {
		fmt.Printf("Timeline cache read (follower0, limit=50): rows=%d\n", len(ids))
	}
}
