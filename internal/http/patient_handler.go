package httpapi

import (
	"errors"
	"net/http"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/service"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// PatientHandler 患者档案、照护关系与医生面板端点
type PatientHandler struct {
	patients *service.PatientService
	queries  *service.ReadingQueryService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPatientHandler(patients *service.PatientService, queries *service.ReadingQueryService, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{
		patients: patients,
		queries:  queries,
		validate: validator.New(),
		logger:   logger,
	}
}

type createPatientRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Create POST /patients
func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	patient, err := h.patients.Create(r.Context(), &domain.Patient{Name: req.Name, Email: req.Email})
	if err != nil {
		h.logger.Error("patient creation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("creation failed"))
		return
	}
	writeJSON(w, http.StatusCreated, Ok(patient))
}

// Get GET /patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request, patientID string) {
	patient, err := h.patients.Get(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("patient not found"))
			return
		}
		h.logger.Error("patient lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("lookup failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

type assignPhysicianRequest struct {
	PhysicianID string `json:"physicianId" validate:"required"`
}

// AddPhysician POST /patients/{id}/physicians
func (h *PatientHandler) AddPhysician(w http.ResponseWriter, r *http.Request, patientID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	var req assignPhysicianRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	if err := h.patients.AddPhysician(r.Context(), principal, patientID, req.PhysicianID); err != nil {
		h.writeAssignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"patientId":   patientID,
		"physicianId": req.PhysicianID,
	}))
}

// AddPhysicianByID POST /patients/{id}/physicians/{physicianId}（路径参数形态）
func (h *PatientHandler) AddPhysicianByID(w http.ResponseWriter, r *http.Request, patientID, physicianID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}
	if err := h.patients.AddPhysician(r.Context(), principal, patientID, physicianID); err != nil {
		h.writeAssignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"patientId":   patientID,
		"physicianId": physicianID,
	}))
}

// RemovePhysician DELETE /patients/{id}/physicians/{physicianId}
func (h *PatientHandler) RemovePhysician(w http.ResponseWriter, r *http.Request, patientID, physicianID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	if err := h.patients.RemovePhysician(r.Context(), principal, patientID, physicianID); err != nil {
		h.writeAssignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"removed": physicianID}))
}

// Summary GET /patients/{id}/summary?days=7 患者全部设备的窗口统计
func (h *PatientHandler) Summary(w http.ResponseWriter, r *http.Request, patientID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}
	if allowed, err := h.canViewPatient(r, principal, patientID); err != nil {
		h.logger.Error("patient access check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("query failed"))
		return
	} else if !allowed {
		writeJSON(w, http.StatusForbidden, Fail("access to patient denied"))
		return
	}

	days := parseInt(r.URL.Query().Get("days"), service.DefaultSummaryWindowDays)
	summary, err := h.queries.PatientSummary(r.Context(), patientID, days)
	if err != nil {
		h.logger.Error("patient summary failed", zap.Error(err), zap.String("patient_id", patientID))
		writeJSON(w, http.StatusInternalServerError, Fail("query failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// PhysicianDashboard GET /physicians/me/patients?days=7
// 医生视角：逐患者统计（fan-out），不做跨患者合并
func (h *PatientHandler) PhysicianDashboard(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}
	if principal.Role != domain.RolePhysician {
		writeJSON(w, http.StatusForbidden, Fail("physician role required"))
		return
	}

	days := parseInt(r.URL.Query().Get("days"), service.DefaultSummaryWindowDays)
	entries, err := h.queries.PhysicianPatientsSummary(r.Context(), principal.ID, days)
	if err != nil {
		h.logger.Error("physician dashboard failed", zap.Error(err), zap.String("physician_id", principal.ID))
		writeJSON(w, http.StatusInternalServerError, Fail("query failed"))
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"patient": e.Patient,
			"summary": e.Summary,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *PatientHandler) canViewPatient(r *http.Request, principal domain.Principal, patientID string) (bool, error) {
	switch principal.Role {
	case domain.RolePatient:
		return principal.ID == patientID, nil
	case domain.RolePhysician:
		return h.patients.IsAssigned(r.Context(), patientID, principal.ID)
	default:
		return false, nil
	}
}

func (h *PatientHandler) writeAssignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, Fail("only the patient edits their care team"))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("patient not found"))
	default:
		h.logger.Error("care team update failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("update failed"))
	}
}
