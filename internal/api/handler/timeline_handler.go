package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/pulse/pkg/middleware"
	"github.com/d60-Lab/pulse/pkg/response"
)

// GetTimeline 个人时间线（推缓存 + 大V拉取 + 兜底）
// @Summary 个人时间线
// @Tags 时间线
// @Produce json
// @Security Bearer
// @Param limit query int false "条数" default(50)
// @Param offset query int false "偏移" default(0)
// @Success 200 {object} response.Response{data=service.TimelineResult}
// @Router /api/v1/timeline [get]
func (h *Handler) GetTimeline(c *gin.Context) {
	limit, offset := h.windowParams(c)
	res, err := h.timelineSvc.GetTimeline(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, res)
}

// GetGlobalTimeline 全站时间线
// @Summary 全站时间线
// @Tags 时间线
// @Param limit query int false "条数" default(50)
// @Param offset query int false "偏移" default(0)
// @Success 200 {object} response.Response
// @Router /api/v1/timeline/global [get]
func (h *Handler) GetGlobalTimeline(c *gin.Context) {
	limit, offset := h.windowParams(c)
	posts, err := h.timelineSvc.GetGlobal(c.Request.Context(), limit, offset)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"posts": posts})
}

func (h *Handler) windowParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 {
		limit = 50
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
