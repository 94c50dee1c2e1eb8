package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/internal/service"
	"github.com/d60-Lab/pulse/pkg/middleware"
	"github.com/d60-Lab/pulse/pkg/response"
)

// Me 当前登录用户资料
// @Summary 当前用户
// @Tags 用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/v1/users/me [get]
func (h *Handler) Me(c *gin.Context) {
	u, err := h.userSvc.GetByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.Success(c, u)
}

// GetUser 按用户名查资料
// @Summary 用户资料
// @Tags 用户
// @Param username path string true "用户名"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/users/by/{username} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.userSvc.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.Success(c, u)
}

// Follow 关注用户（同事务更新计数与大V标记）
// @Summary 关注
// @Tags 关系链
// @Security Bearer
// @Param user_id path int true "被关注用户ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	err = h.relSvc.Follow(c.Request.Context(), middleware.UserID(c), targetID)
	switch {
	case err == nil:
		response.Success(c, nil)
	case errors.Is(err, service.ErrFollowSelf):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, repository.ErrDuplicateFollow):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// Unfollow 取消关注
// @Summary 取关
// @Tags 关系链
// @Security Bearer
// @Param user_id path int true "被取关用户ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	err = h.relSvc.Unfollow(c.Request.Context(), middleware.UserID(c), targetID)
	switch {
	case err == nil:
		response.Success(c, nil)
	case errors.Is(err, service.ErrNotFollowing):
		response.NotFound(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// ListFollowers 粉丝列表
// @Summary 粉丝列表
// @Tags 关系链
// @Param user_id path int true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	page, pageSize := h.pageParams(c)
	list, err := h.relSvc.ListFollowers(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFollowing 关注列表
// @Summary 关注列表
// @Tags 关系链
// @Param user_id path int true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	page, pageSize := h.pageParams(c)
	list, err := h.relSvc.ListFollowing(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

func (h *Handler) pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}
	return page, pageSize
}
