package repository

import (
	"context"
	"time"

	"hearttrack-data/internal/domain"
)

// DevicesRepository 设备Repository接口
// 使用强类型领域模型，不使用map[string]any
type DevicesRepository interface {
	// 按硬件标识解析设备（遥测接入热路径）
	ResolveByHardwareID(ctx context.Context, hardwareID string) (*domain.Device, error)

	// 接收遥测后刷新 last_seen_at（best-effort，与读数写入不要求事务一致）
	TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error

	// 查询
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)
	ListByPatient(ctx context.Context, patientID string) ([]*domain.Device, error)

	// 注册
	CreateDevice(ctx context.Context, device *domain.Device) (string, error)

	// 档案编辑（label/model/firmware/is_active/schedule）
	UpdateDevice(ctx context.Context, device *domain.Device) error

	// 认领：把设备绑定到患者（已被他人认领时报错）
	ClaimDevice(ctx context.Context, deviceID, patientID string) error

	// 删除（有读数引用时由调用方先行判断，软不变量）
	DeleteDevice(ctx context.Context, deviceID string) error
}
