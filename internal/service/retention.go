package service

import (
	"context"
	"time"

	"hearttrack-data/internal/repository"

	"go.uber.org/zap"
)

// RetentionSweeper 周期删除超出保留期的读数
// 查询侧已经把窗口钳到保留边界，清理只负责回收存储空间，晚删无害
type RetentionSweeper struct {
	readings repository.ReadingsRepository
	days     int
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewRetentionSweeper(readings repository.ReadingsRepository, days int, interval time.Duration, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		readings: readings,
		days:     days,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run 阻塞运行直到 ctx 取消；启动即先清一轮
func (s *RetentionSweeper) Run(ctx context.Context) {
	if s.days <= 0 {
		s.logger.Info("reading retention disabled, sweeper not running")
		return
	}
	s.logger.Info("retention sweeper started",
		zap.Int("retention_days", s.days),
		zap.Duration("interval", s.interval),
	)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.days)
	removed, err := s.readings.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("retention sweep completed",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
}
