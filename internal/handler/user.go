package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/service"
	"github.com/user/lms/internal/utils"
)

type signUpRequest struct {
	Name     string     `json:"name" binding:"required,min=2,max=50,person_name"`
	Email    string     `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required,strong_password"`
	Role     model.Role `json:"role" binding:"omitempty,oneof=student instructor"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,strong_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,strong_password"`
}

type profileForm struct {
	Name *string `form:"name" binding:"omitempty,min=2,max=50,person_name"`
	Bio  *string `form:"bio" binding:"omitempty,max=200"`
}

// SignUp 注册并登录
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	user, err := h.Auth.SignUp(c.Request.Context(), service.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.issueToken(c, user); err != nil {
		fail(c, err)
		return
	}
	utils.Created(c, "User created successfully", user)
}

// SignIn 登录
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	user, err := h.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.issueToken(c, user); err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Welcome back "+user.Name, user)
}

// SignOut 清除登录 Cookie
func (h *Handler) SignOut(c *gin.Context) {
	middleware.ClearAuthCookie(c, h.Config.IsProduction())
	utils.Success(c, "Signed out successfully", nil)
}

// Profile 当前用户资料
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.Auth.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", user)
}

// UpdateProfile 修改姓名、简介、头像（multipart）
func (h *Handler) UpdateProfile(c *gin.Context) {
	var form profileForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, bindError(err))
		return
	}

	avatar, cleanup, err := saveUpload(c, "avatar")
	defer cleanup()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Invalid avatar upload", err))
		return
	}
	if err := requireContentType(avatar, "image/", "Avatar must be an image"); err != nil {
		fail(c, err)
		return
	}

	user, err := h.Auth.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), service.ProfileInput{
		Name:   form.Name,
		Bio:    form.Bio,
		Avatar: avatar,
	})
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Profile updated successfully", user)
}

// ChangePassword 修改密码
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	if err := h.Auth.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Password changed successfully", nil)
}

// ForgotPassword 生成重置链接，不暴露邮箱是否存在
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	token, err := h.Auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err)
		return
	}

	var data gin.H
	if token != "" {
		resetURL := h.Config.ClientURL + "/reset-password/" + token
		h.Log.Info().Str("email", model.NormalizeEmail(req.Email)).Str("reset_url", resetURL).Msg("password reset requested")
		if !h.Config.IsProduction() {
			data = gin.H{"resetToken": token}
		}
	}
	utils.Success(c, "If an account exists for this email, a password reset link has been sent", data)
}

// ResetPassword 使用令牌重置密码并登录
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	user, err := h.Auth.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.issueToken(c, user); err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Password reset successfully", user)
}
