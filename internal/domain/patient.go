package domain

import "time"

// Patient 患者档案（对应 patients 表）
// 账号/口令由外部身份层管理，这里只保留业务档案字段
type Patient struct {
	PatientID string    `db:"patient_id" json:"patient_id"` // UUID
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email,omitempty"` // UNIQUE
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Physician 医生档案（对应 physicians 表）
type Physician struct {
	PhysicianID string    `db:"physician_id" json:"physician_id"` // UUID
	Name        string    `db:"name" json:"name"`
	LicenseID   string    `db:"license_id" json:"license_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
