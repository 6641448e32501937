package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hearttrack-data/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PostgresDevicesRepo struct {
	db *sql.DB
}

func NewPostgresDevicesRepo(db *sql.DB) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db}
}

var _ DevicesRepository = (*PostgresDevicesRepo)(nil)

const deviceColumns = `
	device_id::text,
	hardware_id,
	CASE WHEN patient_id IS NULL THEN NULL ELSE patient_id::text END as patient_id,
	label,
	model,
	firmware_version,
	is_active,
	last_seen_at,
	sched_start_time,
	sched_end_time,
	sched_freq_minutes,
	created_at,
	updated_at
`

func (r *PostgresDevicesRepo) ResolveByHardwareID(ctx context.Context, hardwareID string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE hardware_id = $1`,
		hardwareID,
	)
	return scanDeviceRow(row)
}

func (r *PostgresDevicesRepo) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`,
		deviceID,
	)
	return scanDeviceRow(row)
}

func (r *PostgresDevicesRepo) ListByPatient(ctx context.Context, patientID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE patient_id = $1 ORDER BY created_at ASC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices by patient: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Device, 0)
	for rows.Next() {
		d, err := scanDeviceInto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresDevicesRepo) CreateDevice(ctx context.Context, device *domain.Device) (string, error) {
	if device.DeviceID == "" {
		device.DeviceID = uuid.NewString()
	}
	var patientID any
	if device.PatientID.Valid {
		patientID = device.PatientID.String
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices
		 (device_id, hardware_id, patient_id, label, model, firmware_version, is_active,
		  sched_start_time, sched_end_time, sched_freq_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		device.DeviceID,
		device.HardwareID,
		patientID,
		device.Label,
		device.Model,
		device.FirmwareVersion,
		device.IsActive,
		device.Schedule.StartTime,
		device.Schedule.EndTime,
		device.Schedule.FrequencyMinutes,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("failed to create device: %w", err)
	}
	return device.DeviceID, nil
}

func (r *PostgresDevicesRepo) UpdateDevice(ctx context.Context, device *domain.Device) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices
		 SET label = $2,
		     model = $3,
		     firmware_version = $4,
		     is_active = $5,
		     sched_start_time = $6,
		     sched_end_time = $7,
		     sched_freq_minutes = $8,
		     updated_at = NOW()
		 WHERE device_id = $1`,
		device.DeviceID,
		device.Label,
		device.Model,
		device.FirmwareVersion,
		device.IsActive,
		device.Schedule.StartTime,
		device.Schedule.EndTime,
		device.Schedule.FrequencyMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresDevicesRepo) ClaimDevice(ctx context.Context, deviceID, patientID string) error {
	// 已被同一患者认领时幂等；被他人认领时不抢占
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices
		 SET patient_id = $2, updated_at = NOW()
		 WHERE device_id = $1 AND (patient_id IS NULL OR patient_id = $2)`,
		deviceID, patientID,
	)
	if err != nil {
		return fmt.Errorf("failed to claim device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetDevice(ctx, deviceID); err != nil {
			return err // ErrNotFound
		}
		return ErrDuplicate // exists but owned by another patient
	}
	return nil
}

func (r *PostgresDevicesRepo) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = $2, updated_at = NOW() WHERE device_id = $1`,
		deviceID, seenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to touch last_seen_at: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE device_id = $1`,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDeviceInto(s rowScanner) (*domain.Device, error) {
	var d domain.Device
	err := s.Scan(
		&d.DeviceID,
		&d.HardwareID,
		&d.PatientID,
		&d.Label,
		&d.Model,
		&d.FirmwareVersion,
		&d.IsActive,
		&d.LastSeenAt,
		&d.Schedule.StartTime,
		&d.Schedule.EndTime,
		&d.Schedule.FrequencyMinutes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDeviceRow(row *sql.Row) (*domain.Device, error) {
	d, err := scanDeviceInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	return d, nil
}
