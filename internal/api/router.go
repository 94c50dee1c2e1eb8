package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/pulse/config"
	_ "github.com/d60-Lab/pulse/docs"
	"github.com/d60-Lab/pulse/internal/api/handler"
	"github.com/d60-Lab/pulse/pkg/middleware"
)

// NewRouter 组装全部路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(otelgin.Middleware("pulse"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.JWTAuth([]byte(cfg.Auth.JWTSecret))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/register", h.Register)
		v1.POST("/auth/login", h.Login)

		v1.GET("/users/me", auth, h.Me)
		v1.GET("/users/by/:username", h.GetUser)
		v1.POST("/users/:user_id/follow", auth, h.Follow)
		v1.DELETE("/users/:user_id/follow", auth, h.Unfollow)
		v1.GET("/users/:user_id/followers", h.ListFollowers)
		v1.GET("/users/:user_id/following", h.ListFollowing)

		v1.POST("/posts", auth, h.CreatePost)
		v1.GET("/posts/:post_id", h.GetPost)
		v1.GET("/posts/user/:user_id", h.ListUserPosts)

		v1.GET("/timeline", auth, h.GetTimeline)
		v1.GET("/timeline/global", h.GetGlobalTimeline)

		v1.GET("/system/health", h.Health)
		v1.GET("/system/metrics", h.Metrics)

		v1.DELETE("/admin/cache/timelines", auth, h.ClearTimelines)
		v1.POST("/admin/cache/backfill/:user_id", auth, h.BackfillAuthorTimelines)
	}
	return r
}
