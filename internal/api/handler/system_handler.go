package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/pkg/response"
)

// MetricsDeps 健康检查与指标端点的依赖
type MetricsDeps struct {
	DB         *gorm.DB
	UserRepo   repository.UserRepository
	PostRepo   repository.PostRepository
	FollowRepo repository.FollowRepository
}

// Health 健康检查：数据库 + 缓存探活
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/system/health [get]
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "healthy"
	if sqlDB, err := h.metrics.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "unhealthy"
	}
	redisStatus := "healthy"
	if !h.timeline.Available(ctx) {
		redisStatus = "unavailable"
	}
	status := "healthy"
	if dbStatus != "healthy" {
		status = "degraded"
	}
	response.Success(c, gin.H{
		"status":    status,
		"database":  dbStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().UTC(),
	})
}

// Metrics 实体计数与缓存可用性
// @Summary 系统指标
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/system/metrics [get]
func (h *Handler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	users, _ := h.metrics.UserRepo.Count(ctx)
	celebrities, _ := h.metrics.UserRepo.CountCelebrities(ctx)
	posts, _ := h.metrics.PostRepo.Count(ctx)
	follows, _ := h.metrics.FollowRepo.Count(ctx)
	response.Success(c, gin.H{
		"total_users":     users,
		"total_posts":     posts,
		"total_follows":   follows,
		"celebrity_users": celebrities,
		"redis_available": h.timeline.Available(ctx),
	})
}

// ClearTimelines 管理操作：清空全部时间线缓存（回到 absent 态，强制走兜底）
// @Summary 清空时间线缓存
// @Tags 系统
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/v1/admin/cache/timelines [delete]
func (h *Handler) ClearTimelines(c *gin.Context) {
	deleted, ok := h.timeline.ClearAll(c.Request.Context())
	if !ok {
		response.Success(c, gin.H{"deleted": deleted, "complete": false})
		return
	}
	response.Success(c, gin.H{"deleted": deleted, "complete": true})
}

// BackfillAuthorTimelines 管理操作：把某作者的历史帖子重新扇出到粉丝缓存
// （配合 ClearTimelines 做缓存重建）
// @Summary 重建某作者的扇出
// @Tags 系统
// @Security Bearer
// @Param user_id path int true "作者ID"
// @Param limit query int false "回填帖子数上限" default(1000)
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/cache/backfill/{user_id} [post]
func (h *Handler) BackfillAuthorTimelines(c *gin.Context) {
	authorID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	if limit < 1 {
		limit = 1000
	}
	n, err := h.fanout.BackfillAuthor(c.Request.Context(), h.metrics.PostRepo, authorID, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"author_id": authorID, "backfilled": n})
}
