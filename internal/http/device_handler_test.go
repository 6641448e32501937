package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/service"

	"go.uber.org/zap"
)

type deviceEnv struct {
	router   *Router
	readings *repository.MemoryReadingsRepo
}

func newDeviceEnv(t *testing.T) *deviceEnv {
	t.Helper()
	logger := zap.NewNop()
	devices := repository.NewMemoryDevicesRepo()
	readings := repository.NewMemoryReadingsRepo()
	patients := repository.NewMemoryPatientsRepo()
	for _, p := range []*domain.Patient{
		{PatientID: "patient-1", Name: "Ann"},
		{PatientID: "patient-2", Name: "Bob"},
	} {
		if _, err := patients.CreatePatient(context.Background(), p); err != nil {
			t.Fatalf("seed patient: %v", err)
		}
	}

	svc := service.NewDeviceService(devices, readings, patients, nil, logger)
	router := NewRouter(logger)
	router.RegisterDeviceRoutes(NewDeviceHandler(svc, logger))
	return &deviceEnv{router: router, readings: readings}
}

func (e *deviceEnv) do(t *testing.T, method, path, userID, role string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Code   int            `json:"code"`
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode result envelope: %v", err)
	}
	return resp.Result
}

func TestDeviceRegister_AndDuplicate(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeResult(t, rec)
	if result["label"] != "My HeartTrack Device" || result["model"] != "Photon 2" {
		t.Fatalf("expected defaults applied, got %v", result)
	}

	rec = env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate hardwareId, got %d", rec.Code)
	}
}

func TestDeviceRegister_MissingHardwareID400(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"label": "bedside"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeviceClaim_Lifecycle(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	deviceID, _ := decodeResult(t, rec)["device_id"].(string)
	if deviceID == "" {
		t.Fatalf("missing device_id in response")
	}

	rec = env.do(t, http.MethodPost, "/devices/"+deviceID+"/claim", "patient-1", "patient", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// 他人认领被拒
	rec = env.do(t, http.MethodPost, "/devices/"+deviceID+"/claim", "patient-2", "patient", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second claimer, got %d", rec.Code)
	}

	// 归属人可见，列表包含该设备
	rec = env.do(t, http.MethodGet, "/devices", "patient-1", "patient", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var listResp struct {
		Result []map[string]any `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listResp.Result) != 1 {
		t.Fatalf("expected 1 device, got %d", len(listResp.Result))
	}
}

func TestDeviceUpdate_ScheduleValidation(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001", "patientId": "patient-1"})
	deviceID, _ := decodeResult(t, rec)["device_id"].(string)

	rec = env.do(t, http.MethodPatch, "/devices/"+deviceID, "patient-1", "patient", map[string]any{
		"schedule": map[string]any{"startTime": "07:00", "endTime": "21:00", "frequencyMinutes": 2},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for sub-minimum frequency, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/devices/"+deviceID, "patient-1", "patient", map[string]any{
		"schedule": map[string]any{"startTime": "07:00", "endTime": "21:00", "frequencyMinutes": 15},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeviceDelete_OnlyOwner(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001", "patientId": "patient-1"})
	deviceID, _ := decodeResult(t, rec)["device_id"].(string)

	rec = env.do(t, http.MethodDelete, "/devices/"+deviceID, "patient-2", "patient", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/devices/"+deviceID, "patient-1", "patient", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/devices/"+deviceID, "patient-1", "patient", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestDeviceDelete_ConflictWhileReadingsExist(t *testing.T) {
	env := newDeviceEnv(t)

	rec := env.do(t, http.MethodPost, "/devices", "", "", map[string]any{"hardwareId": "HT-0001", "patientId": "patient-1"})
	deviceID, _ := decodeResult(t, rec)["device_id"].(string)

	if _, err := env.readings.Append(context.Background(), &domain.Reading{
		DeviceID:    deviceID,
		PatientID:   "patient-1",
		HeartRate:   72,
		ReadingTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed reading: %v", err)
	}

	rec = env.do(t, http.MethodDelete, "/devices/"+deviceID, "patient-1", "patient", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while readings reference the device, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/devices/"+deviceID, "patient-1", "patient", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected device to survive refused delete, got %d", rec.Code)
	}
}
