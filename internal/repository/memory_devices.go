package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"hearttrack-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryDevicesRepo 内存实现：DB 未就绪时的联测与单元测试用
// - IDs 使用 uuid
// - 仅保证与 Postgres 实现相同的语义，不做持久化
type MemoryDevicesRepo struct {
	mu sync.RWMutex

	devices    map[string]*domain.Device // deviceID -> device
	byHardware map[string]string         // hardwareID -> deviceID
}

func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{
		devices:    map[string]*domain.Device{},
		byHardware: map[string]string{},
	}
}

var _ DevicesRepository = (*MemoryDevicesRepo)(nil)

func (r *MemoryDevicesRepo) ResolveByHardwareID(_ context.Context, hardwareID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHardware[hardwareID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDevice(r.devices[id]), nil
}

func (r *MemoryDevicesRepo) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDevice(d), nil
}

func (r *MemoryDevicesRepo) ListByPatient(_ context.Context, patientID string) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Device, 0)
	for _, d := range r.devices {
		if d.PatientID.Valid && d.PatientID.String == patientID {
			out = append(out, copyDevice(d))
		}
	}
	return out, nil
}

func (r *MemoryDevicesRepo) CreateDevice(_ context.Context, device *domain.Device) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHardware[device.HardwareID]; exists {
		return "", ErrDuplicate
	}
	d := copyDevice(device)
	if d.DeviceID == "" {
		d.DeviceID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.devices[d.DeviceID] = d
	r.byHardware[d.HardwareID] = d.DeviceID
	return d.DeviceID, nil
}

func (r *MemoryDevicesRepo) UpdateDevice(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.devices[device.DeviceID]
	if !ok {
		return ErrNotFound
	}
	cur.Label = device.Label
	cur.Model = device.Model
	cur.FirmwareVersion = device.FirmwareVersion
	cur.IsActive = device.IsActive
	cur.Schedule = device.Schedule
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryDevicesRepo) ClaimDevice(_ context.Context, deviceID, patientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	if d.PatientID.Valid && d.PatientID.String != patientID {
		return ErrDuplicate
	}
	d.PatientID = sql.NullString{String: patientID, Valid: true}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryDevicesRepo) TouchLastSeen(_ context.Context, deviceID string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.LastSeenAt = sql.NullTime{Time: seenAt, Valid: true}
	return nil
}

func (r *MemoryDevicesRepo) DeleteDevice(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	delete(r.byHardware, d.HardwareID)
	delete(r.devices, deviceID)
	return nil
}

func copyDevice(d *domain.Device) *domain.Device {
	cp := *d
	return &cp
}
