package httpapi

import (
	"context"
	"database/sql"
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

type readingsEnv struct {
	router   *Router
	readings *repository.MemoryReadingsRepo
	patients *repository.MemoryPatientsRepo
	deviceID string
}

func newReadingsEnv(t *testing.T) *readingsEnv {
	t.Helper()
	logger := zap.NewNop()
	devices := repository.NewMemoryDevicesRepo()
	readings := repository.NewMemoryReadingsRepo()
	patients := repository.NewMemoryPatientsRepo()

	deviceID, err := devices.CreateDevice(context.Background(), &domain.Device{
		HardwareID: "HT-0001",
		PatientID:  sql.NullString{String: "patient-1", Valid: true},
		Label:      "bedside",
		Model:      "Photon 2",
		IsActive:   true,
		Schedule:   domain.DefaultSchedule(),
	})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	queries := service.NewReadingQueryService(readings, devices, patients, nil, 8, logger)
	router := NewRouter(logger)
	router.RegisterReadingsRoutes(NewReadingsHandler(queries, logger))
	return &readingsEnv{router: router, readings: readings, patients: patients, deviceID: deviceID}
}

func (e *readingsEnv) seed(t *testing.T, at time.Time, hr int, spo2 *int) {
	t.Helper()
	_, err := e.readings.Append(context.Background(), &domain.Reading{
		DeviceID:    e.deviceID,
		PatientID:   "patient-1",
		HeartRate:   hr,
		SpO2:        spo2,
		ReadingTime: at,
	})
	if err != nil {
		t.Fatalf("seed reading: %v", err)
	}
}

func (e *readingsEnv) get(t *testing.T, path, userID, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestDaily_OwnerGetsSeries(t *testing.T) {
	env := newReadingsEnv(t)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	spo2 := 97
	env.seed(t, today.Add(8*time.Hour), 62, &spo2)
	env.seed(t, today.Add(12*time.Hour), 75, nil)

	rec := env.get(t, "/readings/"+env.deviceID+"/daily?date="+today.Format("2006-01-02"), "patient-1", "patient")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			HeartRate []map[string]any `json:"heartRate"`
			SpO2      []map[string]any `json:"spo2"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.HeartRate) != 2 || len(resp.Data.SpO2) != 2 {
		t.Fatalf("expected 2 points per series, got %d/%d", len(resp.Data.HeartRate), len(resp.Data.SpO2))
	}
	if resp.Data.SpO2[1]["y"] != nil {
		t.Fatalf("missing spo2 must serialize as null, got %v", resp.Data.SpO2[1]["y"])
	}
}

func TestDaily_BadDate400(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/"+env.deviceID+"/daily?date=30-08-2026", "patient-1", "patient")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReadings_MissingIdentity401(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/"+env.deviceID+"/summary", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestReadings_OtherPatient403(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/"+env.deviceID+"/summary", "patient-2", "patient")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReadings_AssignedPhysicianAllowed(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/"+env.deviceID+"/summary", "dr-1", "physician")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before assignment, got %d", rec.Code)
	}

	if err := env.patients.AddPhysician(context.Background(), "patient-1", "dr-1"); err != nil {
		t.Fatalf("assign physician: %v", err)
	}
	rec = env.get(t, "/readings/"+env.deviceID+"/summary", "dr-1", "physician")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after assignment, got %d", rec.Code)
	}
}

func TestReadings_UnknownDevice404(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/no-such-device/summary", "patient-1", "patient")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSummary_Shape(t *testing.T) {
	env := newReadingsEnv(t)
	now := time.Now().UTC()
	env.seed(t, now.Add(-3*time.Hour), 60, nil)
	env.seed(t, now.Add(-2*time.Hour), 70, nil)
	env.seed(t, now.Add(-1*time.Hour), 80, nil)

	rec := env.get(t, "/readings/"+env.deviceID+"/summary?days=7", "patient-1", "patient")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Summary struct {
			HeartRate struct {
				Avg   int `json:"avg"`
				Min   int `json:"min"`
				Max   int `json:"max"`
				Count int `json:"count"`
			} `json:"heartRate"`
			SpO2 struct {
				Count int `json:"count"`
			} `json:"spo2"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary.HeartRate.Avg != 70 || resp.Summary.HeartRate.Min != 60 || resp.Summary.HeartRate.Max != 80 {
		t.Fatalf("unexpected heart rate summary: %+v", resp.Summary.HeartRate)
	}
	if resp.Summary.HeartRate.Count != 3 || resp.Summary.SpO2.Count != 0 {
		t.Fatalf("unexpected counts: hr=%d spo2=%d", resp.Summary.HeartRate.Count, resp.Summary.SpO2.Count)
	}
}

func TestLatest_NoReadings404(t *testing.T) {
	env := newReadingsEnv(t)

	rec := env.get(t, "/readings/"+env.deviceID+"/latest", "patient-1", "patient")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExport_ReturnsWorkbook(t *testing.T) {
	env := newReadingsEnv(t)
	env.seed(t, time.Now().UTC().Add(-time.Hour), 70, nil)

	rec := env.get(t, "/readings/"+env.deviceID+"/export", "patient-1", "patient")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}
