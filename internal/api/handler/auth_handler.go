package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/pulse/internal/service"
	"github.com/d60-Lab/pulse/pkg/response"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"max=100"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 注册新用户
// @Summary 注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindErrMessage(err))
		return
	}
	u, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, u)
}

// Login 登录，签发 JWT
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindErrMessage(err))
		return
	}
	token, u, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Unauthorized(c, "invalid username or password")
		return
	}
	response.Success(c, gin.H{"token": token, "user": u})
}
