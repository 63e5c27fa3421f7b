package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/user/lms/internal/config"
	"github.com/user/lms/internal/handler"
	"github.com/user/lms/internal/logger"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/payment"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/router"
	"github.com/user/lms/internal/service"
	"github.com/user/lms/internal/storage"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env)
	if envErr != nil {
		log.Info().Msg("未找到 .env 文件，使用系统环境变量")
	}

	// 数据库
	conn := repository.NewConnection(cfg.DatabaseURL, cfg.DB, !cfg.IsProduction(), log)
	db, err := conn.Connect(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("数据库连接失败")
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("数据库迁移失败")
	}
	repos := repository.NewRepositories(db)

	// 媒体存储
	media, err := storage.NewMediaStore(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("媒体存储初始化失败")
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := media.EnsureBucket(bucketCtx); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("存储桶不可用，上传将失败")
	}
	cancelBucket()

	// 限流（可选）
	var (
		rdb     *redis.Client
		counter middleware.Counter
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis 不可用，限流将放行")
		}
		cancelPing()
		counter = middleware.NewRedisCounter(rdb)
	} else {
		log.Info().Msg("未配置 REDIS_ADDR，关闭限流")
	}

	gateway := payment.NewRazorpay(cfg.Payment)
	if cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "" {
		log.Warn().Msg("未配置 Razorpay 密钥，支付接口将失败")
	}

	services := handler.Services{
		Auth:     service.NewAuthService(repos, media, log),
		Courses:  service.NewCourseService(repos, media, log),
		Progress: service.NewProgressService(repos, log),
		Payments: service.NewPaymentService(repos, gateway, cfg.Payment.Currency, log),
	}

	// 定时清理
	cleanup := service.NewCleanupService(repos, log)
	if err := cleanup.Start(); err != nil {
		log.Fatal().Err(err).Msg("清理任务启动失败")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(cfg, log, services, media, conn, rdb)
	r := router.New(h, counter)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute, // 视频上传
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	// kill -9 无法捕获，不需要监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("服务器强制关闭")
	}
	cleanup.Stop(ctx)
	if err := conn.Close(); err != nil {
		log.Error().Err(err).Msg("关闭数据库连接失败")
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	log.Info().Msg("服务器已退出")
}
