package repository

import (
	"context"
	"time"

	"hearttrack-data/internal/domain"
)

// ReadingsRepository 读数Repository接口
// append-only：只有 Append 和按保留期的 DeleteOlderThan 会写表
// 查询结果一律按 reading_time 升序，无重复
type ReadingsRepository interface {
	// Append 追加一条读数，返回生成的 id
	Append(ctx context.Context, reading *domain.Reading) (int64, error)

	// QueryByDevice 按设备 + 时间窗查询（[start, end] 闭区间）
	QueryByDevice(ctx context.Context, deviceID string, start, end time.Time) ([]*domain.Reading, error)

	// QueryByPatient 按患者 + 时间窗查询（跨该患者全部设备）
	QueryByPatient(ctx context.Context, patientID string, start, end time.Time) ([]*domain.Reading, error)

	// LatestByDevice 设备最近一条读数（KV 缓存未命中时的回源）
	LatestByDevice(ctx context.Context, deviceID string) (*domain.Reading, error)

	// DeleteOlderThan 保留期清理：删除 reading_time 早于 cutoff 的读数，返回删除行数
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
