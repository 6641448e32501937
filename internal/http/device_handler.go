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

// DeviceHandler 设备档案管理端点（Result 封装）
type DeviceHandler struct {
	devices  *service.DeviceService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDeviceHandler(devices *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		validate: validator.New(),
		logger:   logger,
	}
}

type registerDeviceRequest struct {
	HardwareID      string `json:"hardwareId" validate:"required,min=3,max=64"`
	Label           string `json:"label" validate:"omitempty,max=128"`
	Model           string `json:"model" validate:"omitempty,max=64"`
	FirmwareVersion string `json:"firmwareVersion" validate:"omitempty,max=32"`
	PatientID       string `json:"patientId" validate:"omitempty,uuid4|min=3"`
}

// Register POST /devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	device, err := h.devices.Register(r.Context(), service.RegisterDeviceInput{
		HardwareID:      req.HardwareID,
		Label:           req.Label,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		PatientID:       req.PatientID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			writeJSON(w, http.StatusConflict, Fail("hardwareId already registered"))
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, Fail("patient not found"))
		default:
			h.logger.Error("device registration failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("registration failed"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, Ok(device.ToJSON()))
}

// ListMine GET /devices（患者名下设备）
func (h *DeviceHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}
	if principal.Role != domain.RolePatient {
		writeJSON(w, http.StatusForbidden, Fail("only patients list their own devices"))
		return
	}

	devices, err := h.devices.ListMine(r.Context(), principal.ID)
	if err != nil {
		h.logger.Error("device list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("list failed"))
		return
	}
	out := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// Get GET /devices/{id}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request, deviceID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	device, err := h.devices.Get(r.Context(), principal, deviceID)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(device.ToJSON()))
}

type updateDeviceRequest struct {
	Label           *string `json:"label" validate:"omitempty,max=128"`
	FirmwareVersion *string `json:"firmwareVersion" validate:"omitempty,max=32"`
	IsActive        *bool   `json:"isActive"`
	Schedule        *struct {
		StartTime        string `json:"startTime" validate:"required"`
		EndTime          string `json:"endTime" validate:"required"`
		FrequencyMinutes int    `json:"frequencyMinutes" validate:"required,min=5"`
	} `json:"schedule"`
}

// Update PATCH /devices/{id}
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request, deviceID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	var req updateDeviceRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	in := service.UpdateProfileInput{
		Label:           req.Label,
		FirmwareVersion: req.FirmwareVersion,
		IsActive:        req.IsActive,
	}
	if req.Schedule != nil {
		in.Schedule = &domain.MeasurementSchedule{
			StartTime:        req.Schedule.StartTime,
			EndTime:          req.Schedule.EndTime,
			FrequencyMinutes: req.Schedule.FrequencyMinutes,
		}
	}

	device, err := h.devices.UpdateProfile(r.Context(), principal, deviceID, in)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, service.ErrForbidden) {
			h.writeDeviceError(w, err)
			return
		}
		// 计划校验失败等输入错误
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(device.ToJSON()))
}

type claimDeviceRequest struct {
	PatientID string `json:"patientId" validate:"required"`
}

// Claim POST /devices/{id}/claim
func (h *DeviceHandler) Claim(w http.ResponseWriter, r *http.Request, deviceID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	var req claimDeviceRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if req.PatientID == "" {
		req.PatientID = principal.ID
	}
	// 患者只能给自己认领
	if principal.Role != domain.RolePatient || req.PatientID != principal.ID {
		writeJSON(w, http.StatusForbidden, Fail("patients claim devices for themselves"))
		return
	}

	device, err := h.devices.Claim(r.Context(), req.PatientID, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			writeJSON(w, http.StatusConflict, Fail("device already claimed by another patient"))
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, Fail("device or patient not found"))
		default:
			h.logger.Error("device claim failed", zap.Error(err), zap.String("device_id", deviceID))
			writeJSON(w, http.StatusInternalServerError, Fail("claim failed"))
		}
		return
	}
	writeJSON(w, http.StatusOK, Ok(device.ToJSON()))
}

// Delete DELETE /devices/{id}
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request, deviceID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("missing or invalid identity headers"))
		return
	}

	if err := h.devices.Delete(r.Context(), principal, deviceID); err != nil {
		if errors.Is(err, service.ErrDeviceInUse) {
			writeJSON(w, http.StatusConflict, Fail("device still has stored readings"))
			return
		}
		h.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": deviceID}))
}

func (h *DeviceHandler) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("device not found"))
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, Fail("access to device denied"))
	default:
		h.logger.Error("device operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("operation failed"))
	}
}
