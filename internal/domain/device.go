package domain

import (
	"database/sql"
	"fmt"
	"time"
)

// Device 设备领域模型（对应 devices 表）
// hardware_id 是设备固件上报的稳定硬件标识（全局唯一），与数据库主键无关
type Device struct {
	// 主键
	DeviceID string `db:"device_id"` // UUID

	// 硬件标识
	HardwareID string `db:"hardware_id"` // NOT NULL, UNIQUE

	// 归属患者（未认领时为空；未认领的设备不接收遥测）
	PatientID sql.NullString `db:"patient_id"` // UUID, nullable

	// 展示/资产
	Label           string         `db:"label"`            // NOT NULL, default 'My HeartTrack Device'
	Model           string         `db:"model"`            // NOT NULL, default 'Photon 2'
	FirmwareVersion sql.NullString `db:"firmware_version"` // nullable

	// 状态
	IsActive   bool         `db:"is_active"`    // NOT NULL, default true
	LastSeenAt sql.NullTime `db:"last_seen_at"` // 每次接收遥测后 best-effort 更新

	// 测量计划
	Schedule MeasurementSchedule

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MeasurementSchedule 测量计划（用户自定义：起止时间 + 频率）
type MeasurementSchedule struct {
	StartTime        string `db:"sched_start_time"`   // "HH:MM", default "06:00"
	EndTime          string `db:"sched_end_time"`     // "HH:MM", default "22:00"
	FrequencyMinutes int    `db:"sched_freq_minutes"` // >= 5, default 30
}

// DefaultSchedule 默认测量计划
func DefaultSchedule() MeasurementSchedule {
	return MeasurementSchedule{StartTime: "06:00", EndTime: "22:00", FrequencyMinutes: 30}
}

// Validate 校验测量计划
func (s MeasurementSchedule) Validate() error {
	if !isClock(s.StartTime) {
		return fmt.Errorf("invalid schedule start time %q, want HH:MM", s.StartTime)
	}
	if !isClock(s.EndTime) {
		return fmt.Errorf("invalid schedule end time %q, want HH:MM", s.EndTime)
	}
	if s.FrequencyMinutes < 5 {
		return fmt.Errorf("schedule frequency must be at least 5 minutes, got %d", s.FrequencyMinutes)
	}
	return nil
}

func isClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (d *Device) ToJSON() map[string]any {
	m := map[string]any{
		"device_id":   d.DeviceID,
		"hardware_id": d.HardwareID,
		"label":       d.Label,
		"model":       d.Model,
		"is_active":   d.IsActive,
		"schedule": map[string]any{
			"start_time":        d.Schedule.StartTime,
			"end_time":          d.Schedule.EndTime,
			"frequency_minutes": d.Schedule.FrequencyMinutes,
		},
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}
	if d.PatientID.Valid {
		m["patient_id"] = d.PatientID.String
	} else {
		m["patient_id"] = nil
	}
	if d.FirmwareVersion.Valid {
		m["firmware_version"] = d.FirmwareVersion.String
	}
	if d.LastSeenAt.Valid {
		m["last_seen_at"] = d.LastSeenAt.Time
	} else {
		m["last_seen_at"] = nil
	}
	return m
}
