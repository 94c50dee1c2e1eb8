package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/pulse/config"
	"github.com/d60-Lab/pulse/internal/api"
	"github.com/d60-Lab/pulse/internal/api/handler"
	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/events"
	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/internal/service"
	"github.com/d60-Lab/pulse/pkg/database"
	"github.com/d60-Lab/pulse/pkg/logger"
	"github.com/d60-Lab/pulse/pkg/tracing"
)

func main() {
	inlineWorker := flag.Bool("worker", false, "run the fan-out worker inside the API process")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Log.Mode, cfg.Log.Level)
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, "pulse-server", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
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
	notifier := events.NewNotifier(queueClient, cfg.Queue.Stream)
	queue := events.NewQueue(queueClient, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.MinIdle)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)

	userSvc := service.NewUserService(userRepo, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenExpiration)
	relSvc := service.NewRelationshipService(db, userRepo, cfg.Timeline.CelebrityThreshold)
	postSvc := service.NewPostService(postRepo, userRepo, timeline, notifier)
	timelineSvc := service.NewTimelineService(timeline, postRepo, followRepo, cfg.Timeline.CelebrityPullLimit)

	// worker 实例始终构建：管理端的回填接口走它的扇出路径；
	// 消费协程只在 -worker 模式下启动
	worker := service.NewFanoutWorker(queue, timeline, followRepo, cfg.Queue.BatchSize, cfg.Queue.Block)
	if *inlineWorker {
		stopWorker, err := worker.Start(ctx, cfg.Queue.Consumers)
		if err != nil {
			logger.Fatal("start fanout worker", zap.Error(err))
		}
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = stopWorker(shCtx)
		}()
		logger.Info("inline fanout worker started", zap.Int("consumers", cfg.Queue.Consumers))
	}

	h := handler.New(userSvc, relSvc, postSvc, timelineSvc, timeline, worker, &handler.MetricsDeps{
		DB:         db,
		UserRepo:   userRepo,
		PostRepo:   postRepo,
		FollowRepo: followRepo,
	}, cfg.Timeline.MaxPageSize)
	router := api.NewRouter(cfg, h)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
