package handler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/config"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/service"
)

// Database 健康检查需要的连接能力
type Database interface {
	Ping(ctx context.Context) error
	Status() repository.ConnectionStatus
}

// Handler HTTP 处理器
type Handler struct {
	Config   *config.Config
	Log      zerolog.Logger
	Auth     *service.AuthService
	Courses  *service.CourseService
	Progress *service.ProgressService
	Payments *service.PaymentService
	Media    service.MediaStore
	DB       Database
	Redis    *redis.Client

	startedAt time.Time
}

// Services 处理器依赖的服务
type Services struct {
	Auth     *service.AuthService
	Courses  *service.CourseService
	Progress *service.ProgressService
	Payments *service.PaymentService
}

// NewHandler 创建处理器；redis 可以为 nil
func NewHandler(cfg *config.Config, log zerolog.Logger, svc Services, media service.MediaStore, db Database, rdb *redis.Client) *Handler {
	if err := RegisterValidators(); err != nil {
		log.Warn().Err(err).Msg("custom validators not registered")
	}
	return &Handler{
		Config:    cfg,
		Log:       log,
		Auth:      svc.Auth,
		Courses:   svc.Courses,
		Progress:  svc.Progress,
		Payments:  svc.Payments,
		Media:     media,
		DB:        db,
		Redis:     rdb,
		startedAt: time.Now(),
	}
}

// Hello 根路径
func (h *Handler) Hello(c *gin.Context) {
	c.String(200, "Hello World!")
}

// NotFound 未匹配的路由
func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(404, gin.H{"success": false, "message": "Route Not Found"})
}

// fail 交给 ErrorHandler 输出
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// AuthConfig 鉴权中间件配置
func (h *Handler) AuthConfig() middleware.AuthConfig {
	return middleware.AuthConfig{
		Secret: h.Config.AppSecret,
		Expiry: h.Config.JWTExpiry,
		Secure: h.Config.IsProduction(),
	}
}

// issueToken 签发令牌并写入 Cookie
func (h *Handler) issueToken(c *gin.Context, user *model.User) (string, error) {
	cfg := h.AuthConfig()
	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, cfg.Secret, cfg.Expiry)
	if err != nil {
		return "", err
	}
	middleware.SetAuthCookie(c, token, cfg.Expiry, cfg.Secure)
	return token, nil
}

// pathID 解析路径中的 UUID，格式错误视为不存在
func pathID(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, ok := model.ParseID(c.Param(name))
	if !ok {
		fail(c, apperr.NotFound(message))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// saveUpload 将表单文件存到临时目录，未上传时返回 nil。
// 调用方负责 cleanup。
func saveUpload(c *gin.Context, field string) (*service.FileUpload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "lms-upload-")
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	dst := filepath.Join(dir, filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		cleanup()
		return nil, func() {}, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &service.FileUpload{Path: dst, ContentType: contentType}, cleanup, nil
}

// requireContentType 校验上传文件的 MIME 前缀，如 image/ 或 video/
func requireContentType(file *service.FileUpload, prefix, message string) error {
	if file != nil && !strings.HasPrefix(file.ContentType, prefix) {
		return apperr.Validation(message)
	}
	return nil
}
