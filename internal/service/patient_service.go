package service

import (
	"context"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"

	"go.uber.org/zap"
)

// PatientService 患者档案与照护关系管理
type PatientService struct {
	patients repository.PatientsRepository
	logger   *zap.Logger
}

func NewPatientService(patients repository.PatientsRepository, logger *zap.Logger) *PatientService {
	return &PatientService{patients: patients, logger: logger}
}

func (s *PatientService) Get(ctx context.Context, patientID string) (*domain.Patient, error) {
	return s.patients.GetPatient(ctx, patientID)
}

func (s *PatientService) Create(ctx context.Context, patient *domain.Patient) (*domain.Patient, error) {
	id, err := s.patients.CreatePatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	s.logger.Info("patient created", zap.String("patient_id", id))
	return s.patients.GetPatient(ctx, id)
}

// AddPhysician 患者把医生加入照护团队（幂等：重复添加不报错不重复）
// 只有患者本人可以编辑自己的照护团队
func (s *PatientService) AddPhysician(ctx context.Context, principal domain.Principal, patientID, physicianID string) error {
	if principal.Role != domain.RolePatient || principal.ID != patientID {
		return ErrForbidden
	}
	if err := s.patients.AddPhysician(ctx, patientID, physicianID); err != nil {
		return err
	}
	s.logger.Info("physician assigned",
		zap.String("patient_id", patientID),
		zap.String("physician_id", physicianID),
	)
	return nil
}

// RemovePhysician 患者把医生移出照护团队（移除不存在的关系静默成功）
func (s *PatientService) RemovePhysician(ctx context.Context, principal domain.Principal, patientID, physicianID string) error {
	if principal.Role != domain.RolePatient || principal.ID != patientID {
		return ErrForbidden
	}
	if err := s.patients.RemovePhysician(ctx, patientID, physicianID); err != nil {
		return err
	}
	s.logger.Info("physician unassigned",
		zap.String("patient_id", patientID),
		zap.String("physician_id", physicianID),
	)
	return nil
}

// IsAssigned 医生是否在患者照护团队中
func (s *PatientService) IsAssigned(ctx context.Context, patientID, physicianID string) (bool, error) {
	return s.patients.IsAssigned(ctx, patientID, physicianID)
}

// ListPatients 医生在册患者列表
func (s *PatientService) ListPatients(ctx context.Context, physicianID string) ([]*domain.Patient, error) {
	return s.patients.ListPatientsByPhysician(ctx, physicianID)
}
