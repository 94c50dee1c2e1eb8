package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/config"
	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/internal/service"
	"github.com/d60-Lab/pulse/pkg/database"
	"github.com/d60-Lab/pulse/pkg/logger"
)

// 独立的扇出进程：与 API 共用事件 stream，消费同一 consumer group
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Log.Mode, cfg.Log.Level)
	defer logger.Sync()

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer cacheClient.Close()
	queueClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	defer queueClient.Close()

	timeline := cache.New(cacheClient, cfg.Timeline.CacheCapacity)
	queue := events.NewQueue(queueClient, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.MinIdle)
	followRepo := repository.NewFollowRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := service.NewFanoutWorker(queue, timeline, followRepo, cfg.Queue.BatchSize, cfg.Queue.Block)
	stopWorker, err := worker.Start(ctx, cfg.Queue.Consumers)
	if err != nil {
		logger.Fatal("start fanout worker", zap.Error(err))
	}
	logger.Info("fanout worker running",
		zap.Int("consumers", cfg.Queue.Consumers),
		zap.String("stream", cfg.Queue.Stream),
		zap.String("group", cfg.Queue.Group))

	<-ctx.Done()
	logger.Info("stopping fanout worker")
	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := stopWorker(shCtx); err != nil {
		logger.Error("worker stop", zap.Error(err))
	}
	logger.Info("fanout worker stopped", zap.Int64("processed", worker.Processed()))
}
