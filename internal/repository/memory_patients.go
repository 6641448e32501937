package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"hearttrack-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryPatientsRepo 内存实现（联测/单测用）
type MemoryPatientsRepo struct {
	mu          sync.RWMutex
	patients    map[string]*domain.Patient
	assignments map[string]map[string]bool // patientID -> physicianID -> assigned
}

func NewMemoryPatientsRepo() *MemoryPatientsRepo {
	return &MemoryPatientsRepo{
		patients:    map[string]*domain.Patient{},
		assignments: map[string]map[string]bool{},
	}
}

var _ PatientsRepository = (*MemoryPatientsRepo)(nil)

func (r *MemoryPatientsRepo) GetPatient(_ context.Context, patientID string) (*domain.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPatientsRepo) CreatePatient(_ context.Context, patient *domain.Patient) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *patient
	if cp.PatientID == "" {
		cp.PatientID = uuid.NewString()
	}
	cp.CreatedAt = time.Now().UTC()
	r.patients[cp.PatientID] = &cp
	return cp.PatientID, nil
}

func (r *MemoryPatientsRepo) AddPhysician(_ context.Context, patientID, physicianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignments[patientID] == nil {
		r.assignments[patientID] = map[string]bool{}
	}
	r.assignments[patientID][physicianID] = true
	return nil
}

func (r *MemoryPatientsRepo) RemovePhysician(_ context.Context, patientID, physicianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments[patientID], physicianID)
	return nil
}

func (r *MemoryPatientsRepo) ListPatientsByPhysician(_ context.Context, physicianID string) ([]*domain.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Patient, 0)
	for patientID, phys := range r.assignments {
		if phys[physicianID] {
			if p, ok := r.patients[patientID]; ok {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryPatientsRepo) IsAssigned(_ context.Context, patientID, physicianID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assignments[patientID][physicianID], nil
}
