package controllers

import (
	"github.com/gin-gonic/gin"

	"chat-server/middlewares"
	"chat-server/services"
	"chat-server/utils"
)

// AuthController serves sign-up and sign-in.
type AuthController struct {
	Auth *services.AuthService
}

type registerReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Number   string `json:"number"`
}

// 用户注册
func (h *AuthController) Register(c *gin.Context) {
	var req registerReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	user, token, err := h.Auth.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Number:   req.Number,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, gin.H{"user": user, "token": token})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// 用户登录
func (h *AuthController) Login(c *gin.Context) {
	var req loginReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	user, token, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"user": user, "token": token}, nil)
}

// UserController serves user lookups.
type UserController struct {
	Users *services.UserService
}

// 获取当前用户信息
func (h *UserController) Me(c *gin.Context) {
	user, err := h.Users.Me(c.Request.Context(), middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, user, nil)
}

// 获取用户资料
func (h *UserController) Profile(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	profile, err := h.Users.Profile(c.Request.Context(), middlewares.MustUserID(c), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, profile, nil)
}

// 搜索用户
func (h *UserController) Search(c *gin.Context) {
	users, err := h.Users.Search(c.Request.Context(), middlewares.MustUserID(c), c.Query("q"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, users, gin.H{"count": len(users)})
}

// 根据手机号查找用户
func (h *UserController) ByPhone(c *gin.Context) {
	user, err := h.Users.ByPhone(c.Request.Context(), c.Param("phone"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, user, nil)
}
