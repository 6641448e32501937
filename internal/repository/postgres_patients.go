package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hearttrack-data/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PostgresPatientsRepo struct {
	db *sql.DB
}

func NewPostgresPatientsRepo(db *sql.DB) *PostgresPatientsRepo {
	return &PostgresPatientsRepo{db: db}
}

var _ PatientsRepository = (*PostgresPatientsRepo)(nil)

func (r *PostgresPatientsRepo) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	var p domain.Patient
	err := r.db.QueryRowContext(ctx,
		`SELECT patient_id::text, name, email, created_at FROM patients WHERE patient_id = $1`,
		patientID,
	).Scan(&p.PatientID, &p.Name, &p.Email, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

func (r *PostgresPatientsRepo) CreatePatient(ctx context.Context, patient *domain.Patient) (string, error) {
	if patient.PatientID == "" {
		patient.PatientID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO patients (patient_id, name, email) VALUES ($1, $2, $3)`,
		patient.PatientID, patient.Name, patient.Email,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("failed to create patient: %w", err)
	}
	return patient.PatientID, nil
}

// AddPhysician add-unique 语义：重复添加不报错不重复
func (r *PostgresPatientsRepo) AddPhysician(ctx context.Context, patientID, physicianID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO patient_physicians (patient_id, physician_id)
		 VALUES ($1, $2)
		 ON CONFLICT (patient_id, physician_id) DO NOTHING`,
		patientID, physicianID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign physician: %w", err)
	}
	return nil
}

func (r *PostgresPatientsRepo) RemovePhysician(ctx context.Context, patientID, physicianID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM patient_physicians WHERE patient_id = $1 AND physician_id = $2`,
		patientID, physicianID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove physician: %w", err)
	}
	return nil
}

func (r *PostgresPatientsRepo) ListPatientsByPhysician(ctx context.Context, physicianID string) ([]*domain.Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.patient_id::text, p.name, p.email, p.created_at
		 FROM patients p
		 JOIN patient_physicians pp ON pp.patient_id = p.patient_id
		 WHERE pp.physician_id = $1
		 ORDER BY p.name ASC`,
		physicianID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients by physician: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Patient, 0)
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.PatientID, &p.Name, &p.Email, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PostgresPatientsRepo) IsAssigned(ctx context.Context, patientID, physicianID string) (bool, error) {
	var assigned bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM patient_physicians WHERE patient_id = $1 AND physician_id = $2
		 )`,
		patientID, physicianID,
	).Scan(&assigned)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return assigned, nil
}
