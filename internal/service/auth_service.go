package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"gorm.io/gorm"
)

// SignUpInput 注册参数
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
}

// ProfileInput 资料更新参数，nil 表示不修改
type ProfileInput struct {
	Name   *string
	Bio    *string
	Avatar *FileUpload
}

// AuthService 账户与资料
type AuthService struct {
	repos *repository.Repositories
	media MediaStore
	log   zerolog.Logger
	now   Clock
}

// NewAuthService 创建账户服务
func NewAuthService(repos *repository.Repositories, media MediaStore, log zerolog.Logger) *AuthService {
	return &AuthService{repos: repos, media: media, log: log, now: time.Now}
}

// SignUp 注册，管理员不能自行注册
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	if name == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Validation("All fields are required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("Please provide a valid email address")
	}
	if len(in.Password) < 8 {
		return nil, apperr.Validation("Password must be at least 8 characters")
	}

	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	if role != model.RoleStudent && role != model.RoleInstructor {
		return nil, apperr.Validation("Role must be student or instructor")
	}

	repos := s.repos.WithContext(ctx)
	existing, err := repos.User.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("User already exists")
	}

	user := &model.User{
		Name:   name,
		Email:  email,
		Role:   role,
		Avatar: model.DefaultAvatar,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}
	user.Touch(s.now())

	if err := repos.User.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, err
	}
	return user, nil
}

// SignIn 邮箱密码登录
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	repos := s.repos.WithContext(ctx)
	user, err := repos.User.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.CheckPassword(password) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}

	now := s.now()
	if err := repos.User.TouchLastActive(user.ID, now); err != nil {
		return nil, err
	}
	user.Touch(now)
	return user, nil
}

// Profile 当前用户资料及已报名课程
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.repos.WithContext(ctx).User.FindProfile(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	return user, nil
}

// UpdateProfile 修改姓名、简介、头像
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*model.User, error) {
	repos := s.repos.WithContext(ctx)
	user, err := repos.User.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > 50 {
			return nil, apperr.Validation("Name must be between 1 and 50 characters")
		}
		user.Name = name
	}
	if in.Bio != nil {
		if len(*in.Bio) > 200 {
			return nil, apperr.Validation("Bio can not exceed 200 characters")
		}
		user.Bio = *in.Bio
	}

	oldAvatarID := user.AvatarPublicID
	newAvatarID := ""
	if in.Avatar != nil {
		if s.media == nil {
			return nil, apperr.Internal("Media storage is not configured")
		}
		up, err := s.media.UploadFile(ctx, in.Avatar.Path, in.Avatar.ContentType)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "Failed to upload avatar", err)
		}
		user.Avatar = up.SecureURL
		user.AvatarPublicID = up.PublicID
		newAvatarID = up.PublicID
	}

	user.Touch(s.now())
	if err := repos.User.Save(user); err != nil {
		s.deleteMedia(ctx, newAvatarID)
		return nil, err
	}
	if newAvatarID != "" {
		s.deleteMedia(ctx, oldAvatarID)
	}
	return user, nil
}

func (s *AuthService) deleteMedia(ctx context.Context, publicID string) {
	if publicID == "" || s.media == nil {
		return
	}
	if err := s.media.Delete(ctx, publicID); err != nil {
		s.log.Warn().Err(err).Str("public_id", publicID).Msg("delete avatar failed")
	}
}

// ChangePassword 校验当前密码后修改
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	repos := s.repos.WithContext(ctx)
	user, err := repos.User.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound("User not found")
	}
	if !user.CheckPassword(current) {
		return apperr.Unauthorized("Current password is incorrect")
	}
	if current == next {
		return apperr.Validation("New password must be different from current password")
	}
	if err := user.SetPassword(next); err != nil {
		return err
	}
	return repos.User.Save(user)
}

// ForgotPassword 生成重置令牌；邮箱不存在时返回空字符串，不暴露账户是否存在
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	repos := s.repos.WithContext(ctx)
	user, err := repos.User.FindByEmail(email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}

	token, err := user.GenerateResetToken(s.now())
	if err != nil {
		return "", err
	}
	if err := repos.User.Save(user); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword 使用令牌重置密码
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*model.User, error) {
	repos := s.repos.WithContext(ctx)
	now := s.now()
	user, err := repos.User.FindByResetToken(model.HashResetToken(token), now)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.ResetTokenValid(token, now) {
		return nil, apperr.Validation("Password reset token is invalid or has expired")
	}

	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	user.ClearResetToken()
	user.Touch(now)
	if err := repos.User.Save(user); err != nil {
		return nil, err
	}
	return user, nil
}
