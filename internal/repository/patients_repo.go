package repository

import (
	"context"

	"hearttrack-data/internal/domain"
)

// PatientsRepository 患者/医生档案与照护关系
// AddPhysician/RemovePhysician 是显式的 add-unique / remove-ref 语义
// （替代存储引擎特有的 $addToSet/$pull 操作符）
type PatientsRepository interface {
	GetPatient(ctx context.Context, patientID string) (*domain.Patient, error)
	CreatePatient(ctx context.Context, patient *domain.Patient) (string, error)

	// 照护关系：重复添加幂等，删除不存在的关系不报错
	AddPhysician(ctx context.Context, patientID, physicianID string) error
	RemovePhysician(ctx context.Context, patientID, physicianID string) error

	// 医生侧视图
	ListPatientsByPhysician(ctx context.Context, physicianID string) ([]*domain.Patient, error)
	IsAssigned(ctx context.Context, patientID, physicianID string) (bool, error)
}
