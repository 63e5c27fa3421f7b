package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/repository"
)

const pendingPurchaseTTL = 24 * time.Hour

// CleanupService 定时清理过期数据
type CleanupService struct {
	repos    *repository.Repositories
	cron     *cron.Cron
	schedule string
	log      zerolog.Logger
	now      Clock
}

// NewCleanupService 创建清理服务，默认每小时执行
func NewCleanupService(repos *repository.Repositories, log zerolog.Logger) *CleanupService {
	return &CleanupService{
		repos:    repos,
		cron:     cron.New(),
		schedule: "@hourly",
		log:      log,
		now:      time.Now,
	}
}

// Start 启动定时任务，启动时先执行一次
func (s *CleanupService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	go s.RunOnce(context.Background())
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待正在执行的任务
func (s *CleanupService) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// CleanupReport 单次清理结果
type CleanupReport struct {
	FailedPurchases    int64
	ClearedResetTokens int64
}

// RunOnce 执行一次清理
func (s *CleanupService) RunOnce(ctx context.Context) CleanupReport {
	var report CleanupReport
	repos := s.repos.WithContext(ctx)
	now := s.now()

	// 1. 超过 24 小时未支付的订单标记为失败
	failed, err := repos.Purchase.FailStalePending(now.Add(-pendingPurchaseTTL))
	if err != nil {
		s.log.Error().Err(err).Msg("cleanup: fail stale purchases")
	} else {
		report.FailedPurchases = failed
	}

	// 2. 清除过期的密码重置令牌
	cleared, err := repos.User.ClearExpiredResetTokens(now)
	if err != nil {
		s.log.Error().Err(err).Msg("cleanup: clear reset tokens")
	} else {
		report.ClearedResetTokens = cleared
	}

	if report.FailedPurchases > 0 || report.ClearedResetTokens > 0 {
		s.log.Info().
			Int64("failed_purchases", report.FailedPurchases).
			Int64("cleared_reset_tokens", report.ClearedResetTokens).
			Msg("cleanup finished")
	}
	return report
}
