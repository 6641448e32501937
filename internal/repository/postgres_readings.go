package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hearttrack-data/internal/domain"
)

// PostgresReadingsRepo 读数Repository实现
// 热路径依赖 (device_id, reading_time) 复合索引（见 migrations/001_init.sql）
type PostgresReadingsRepo struct {
	db *sql.DB
}

func NewPostgresReadingsRepo(db *sql.DB) *PostgresReadingsRepo {
	return &PostgresReadingsRepo{db: db}
}

// 确保实现了接口
var _ ReadingsRepository = (*PostgresReadingsRepo)(nil)

const readingColumns = `
	id,
	device_id::text,
	patient_id::text,
	heart_rate,
	spo2,
	reading_time,
	raw,
	created_at
`

func (r *PostgresReadingsRepo) Append(ctx context.Context, reading *domain.Reading) (int64, error) {
	var spo2 sql.NullInt64
	if reading.SpO2 != nil {
		spo2 = sql.NullInt64{Int64: int64(*reading.SpO2), Valid: true}
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO readings (device_id, patient_id, heart_rate, spo2, reading_time, raw)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		reading.DeviceID,
		reading.PatientID,
		reading.HeartRate,
		spo2,
		reading.ReadingTime,
		reading.Raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return id, nil
}

func (r *PostgresReadingsRepo) QueryByDevice(ctx context.Context, deviceID string, start, end time.Time) ([]*domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE device_id = $1 AND reading_time >= $2 AND reading_time <= $3
		 ORDER BY reading_time ASC, id ASC`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings by device: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (r *PostgresReadingsRepo) QueryByPatient(ctx context.Context, patientID string, start, end time.Time) ([]*domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE patient_id = $1 AND reading_time >= $2 AND reading_time <= $3
		 ORDER BY reading_time ASC, id ASC`,
		patientID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings by patient: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (r *PostgresReadingsRepo) LatestByDevice(ctx context.Context, deviceID string) (*domain.Reading, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE device_id = $1
		 ORDER BY reading_time DESC, id DESC
		 LIMIT 1`,
		deviceID,
	)
	reading, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return reading, nil
}

func (r *PostgresReadingsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM readings WHERE reading_time < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReadingInto(s rowScanner) (*domain.Reading, error) {
	var reading domain.Reading
	var spo2 sql.NullInt64
	var raw []byte

	err := s.Scan(
		&reading.ID,
		&reading.DeviceID,
		&reading.PatientID,
		&reading.HeartRate,
		&spo2,
		&reading.ReadingTime,
		&raw,
		&reading.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if spo2.Valid {
		v := int(spo2.Int64)
		reading.SpO2 = &v
	}
	reading.Raw = raw
	return &reading, nil
}

func scanReading(row *sql.Row) (*domain.Reading, error) {
	return scanReadingInto(row)
}

func scanReadings(rows *sql.Rows) ([]*domain.Reading, error) {
	out := make([]*domain.Reading, 0)
	for rows.Next() {
		reading, err := scanReadingInto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
