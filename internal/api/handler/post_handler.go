package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/pulse/internal/repository"
	"github.com/d60-Lab/pulse/pkg/middleware"
	"github.com/d60-Lab/pulse/pkg/response"
)

type createPostRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// CreatePost 发帖；响应带 mode 字段标记投递路径（published/degraded/celebrity）
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body createPostRequest true "帖子内容"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindErrMessage(err))
		return
	}
	res, err := h.postSvc.Create(c.Request.Context(), middleware.UserID(c), req.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, gin.H{"post": res.Post, "mode": res.Mode})
}

// GetPost 单帖查询
// @Summary 查帖
// @Tags 帖子
// @Param post_id path int true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("post_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid post id")
		return
	}
	p, err := h.postSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, p)
}

// ListUserPosts 某用户的帖子
// @Summary 用户帖子列表
// @Tags 帖子
// @Param user_id path int true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/posts/user/{user_id} [get]
func (h *Handler) ListUserPosts(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	page, pageSize := h.pageParams(c)
	list, err := h.postSvc.ListByAuthor(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
