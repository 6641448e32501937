package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/store"

	"go.uber.org/zap"
)

// DeviceService 设备档案管理：注册、认领、计划配置
type DeviceService struct {
	devices  repository.DevicesRepository
	readings repository.ReadingsRepository
	patients repository.PatientsRepository
	kv       store.KV // optional
	logger   *zap.Logger
}

func NewDeviceService(
	devices repository.DevicesRepository,
	readings repository.ReadingsRepository,
	patients repository.PatientsRepository,
	kv store.KV,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		devices:  devices,
		readings: readings,
		patients: patients,
		kv:       kv,
		logger:   logger,
	}
}

// RegisterDeviceInput 注册入参
type RegisterDeviceInput struct {
	HardwareID      string
	Label           string
	Model           string
	FirmwareVersion string
	PatientID       string // optional, 注册即认领
}

// Register 注册新设备；hardware_id 冲突时返回 ErrDuplicate
func (s *DeviceService) Register(ctx context.Context, in RegisterDeviceInput) (*domain.Device, error) {
	device := &domain.Device{
		HardwareID: in.HardwareID,
		Label:      in.Label,
		Model:      in.Model,
		IsActive:   true,
		Schedule:   domain.DefaultSchedule(),
	}
	if device.Label == "" {
		device.Label = "My HeartTrack Device"
	}
	if device.Model == "" {
		device.Model = "Photon 2"
	}
	if in.FirmwareVersion != "" {
		device.FirmwareVersion = sql.NullString{String: in.FirmwareVersion, Valid: true}
	}
	if in.PatientID != "" {
		if _, err := s.patients.GetPatient(ctx, in.PatientID); err != nil {
			return nil, fmt.Errorf("failed to resolve claiming patient: %w", err)
		}
		device.PatientID = sql.NullString{String: in.PatientID, Valid: true}
	}

	id, err := s.devices.CreateDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device registered",
		zap.String("device_id", id),
		zap.String("hardware_id", in.HardwareID),
	)
	return s.devices.GetDevice(ctx, id)
}

// Get 读取设备档案，主体须可访问（归属患者或其照护医生）
func (s *DeviceService) Get(ctx context.Context, principal domain.Principal, deviceID string) (*domain.Device, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, device); err != nil {
		return nil, err
	}
	return device, nil
}

// ListMine 患者名下全部设备
func (s *DeviceService) ListMine(ctx context.Context, patientID string) ([]*domain.Device, error) {
	return s.devices.ListByPatient(ctx, patientID)
}

// UpdateProfileInput 档案编辑入参；nil 字段表示不修改
type UpdateProfileInput struct {
	Label           *string
	FirmwareVersion *string
	IsActive        *bool
	Schedule        *domain.MeasurementSchedule
}

// UpdateProfile 编辑档案与测量计划（仅归属患者本人）
func (s *DeviceService) UpdateProfile(ctx context.Context, principal domain.Principal, deviceID string, in UpdateProfileInput) (*domain.Device, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if principal.Role != domain.RolePatient || !device.PatientID.Valid || device.PatientID.String != principal.ID {
		return nil, ErrForbidden
	}

	if in.Label != nil {
		device.Label = *in.Label
	}
	if in.FirmwareVersion != nil {
		device.FirmwareVersion = sql.NullString{String: *in.FirmwareVersion, Valid: *in.FirmwareVersion != ""}
	}
	if in.IsActive != nil {
		device.IsActive = *in.IsActive
	}
	if in.Schedule != nil {
		if err := in.Schedule.Validate(); err != nil {
			return nil, err
		}
		device.Schedule = *in.Schedule
	}

	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return nil, err
	}
	return s.devices.GetDevice(ctx, deviceID)
}

// Claim 患者认领设备；设备已归他人时返回 ErrDuplicate
func (s *DeviceService) Claim(ctx context.Context, patientID, deviceID string) (*domain.Device, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("failed to resolve claiming patient: %w", err)
	}
	if err := s.devices.ClaimDevice(ctx, deviceID, patientID); err != nil {
		return nil, err
	}
	s.logger.Info("device claimed",
		zap.String("device_id", deviceID),
		zap.String("patient_id", patientID),
	)
	return s.devices.GetDevice(ctx, deviceID)
}

// Delete 删除设备（仅归属患者本人；未认领设备任何人不可删）
// 仍被已存读数引用的设备不允许硬删除：读数是 append-only 的测量流，
// 删除设备会留下无法归因的孤儿读数。等保留清理把读数清空后才可删
func (s *DeviceService) Delete(ctx context.Context, principal domain.Principal, deviceID string) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if principal.Role != domain.RolePatient || !device.PatientID.Valid || device.PatientID.String != principal.ID {
		return ErrForbidden
	}

	if _, err := s.readings.LatestByDevice(ctx, deviceID); err == nil {
		return ErrDeviceInUse
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check device readings: %w", err)
	}

	if err := s.devices.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	// 快照缓存可能比读数活得久（读数被清理而 TTL 未到），删除时一并失效
	if s.kv != nil {
		if err := s.kv.Del(ctx, latestVitalsKeyPrefix+deviceID); err != nil {
			s.logger.Warn("failed to invalidate latest vitals cache", zap.Error(err), zap.String("device_id", deviceID))
		}
	}
	s.logger.Info("device deleted", zap.String("device_id", deviceID))
	return nil
}

func (s *DeviceService) authorize(ctx context.Context, principal domain.Principal, device *domain.Device) error {
	if !device.PatientID.Valid {
		return repository.ErrNotFound
	}
	switch principal.Role {
	case domain.RolePatient:
		if device.PatientID.String != principal.ID {
			return ErrForbidden
		}
	case domain.RolePhysician:
		assigned, err := s.patients.IsAssigned(ctx, device.PatientID.String, principal.ID)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}
