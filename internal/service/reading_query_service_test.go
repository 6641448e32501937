package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type queryFixture struct {
	svc      *ReadingQueryService
	devices  *repository.MemoryDevicesRepo
	readings *repository.MemoryReadingsRepo
	patients *repository.MemoryPatientsRepo
	deviceID string
	now      time.Time
}

func newQueryFixture(t *testing.T, retentionDays int) *queryFixture {
	t.Helper()
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
	require.NoError(t, err)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc := NewReadingQueryService(readings, devices, patients, nil, retentionDays, zap.NewNop())
	svc.now = func() time.Time { return now }

	return &queryFixture{
		svc:      svc,
		devices:  devices,
		readings: readings,
		patients: patients,
		deviceID: deviceID,
		now:      now,
	}
}

func (f *queryFixture) append(t *testing.T, at time.Time, hr int, spo2 *int) {
	t.Helper()
	_, err := f.readings.Append(context.Background(), &domain.Reading{
		DeviceID:    f.deviceID,
		PatientID:   "patient-1",
		HeartRate:   hr,
		SpO2:        spo2,
		ReadingTime: at,
	})
	require.NoError(t, err)
}

func intPtr(v int) *int { return &v }

func TestDailySeries_RoundTrip(t *testing.T) {
	f := newQueryFixture(t, 8)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// 目标日三条，前后各一天一条（必须被排除）
	f.append(t, day.Add(8*time.Hour), 62, intPtr(97))
	f.append(t, day.Add(12*time.Hour), 75, nil)
	f.append(t, day.Add(20*time.Hour), 68, intPtr(95))
	f.append(t, day.AddDate(0, 0, -1).Add(12*time.Hour), 80, intPtr(99))
	f.append(t, day.AddDate(0, 0, 1).Add(12*time.Hour), 81, intPtr(99))

	series, err := f.svc.DailySeries(context.Background(), f.deviceID, day)
	require.NoError(t, err)
	require.Len(t, series.HeartRate, 3)
	require.Len(t, series.SpO2, 3)

	// 升序
	require.Equal(t, 62, *series.HeartRate[0].Y)
	require.Equal(t, 75, *series.HeartRate[1].Y)
	require.Equal(t, 68, *series.HeartRate[2].Y)

	// 缺失 SpO2 保留为 null 点
	require.NotNil(t, series.SpO2[0].Y)
	require.Nil(t, series.SpO2[1].Y)
	require.Equal(t, 95, *series.SpO2[2].Y)
}

func TestDailySeries_DayBeyondRetentionIsEmpty(t *testing.T) {
	f := newQueryFixture(t, 8)
	oldDay := f.now.AddDate(0, 0, -10)
	f.append(t, oldDay, 70, nil)

	series, err := f.svc.DailySeries(context.Background(), f.deviceID, oldDay)
	require.NoError(t, err)
	require.Empty(t, series.HeartRate)
	require.Empty(t, series.SpO2)
}

func TestSummary_AvgMinMax(t *testing.T) {
	f := newQueryFixture(t, 8)
	f.append(t, f.now.Add(-3*time.Hour), 60, intPtr(95))
	f.append(t, f.now.Add(-2*time.Hour), 70, intPtr(97))
	f.append(t, f.now.Add(-1*time.Hour), 80, nil)

	summary, err := f.svc.Summary(context.Background(), f.deviceID, 7)
	require.NoError(t, err)

	require.Equal(t, 70, summary.HeartRate.Avg)
	require.Equal(t, 60, summary.HeartRate.Min)
	require.Equal(t, 80, summary.HeartRate.Max)
	require.Equal(t, 3, summary.HeartRate.Count)

	// SpO2 只统计实际提供的读数
	require.Equal(t, 96, summary.SpO2.Avg)
	require.Equal(t, 2, summary.SpO2.Count)
}

func TestSummary_ExcludesReadingsBeyondRetention(t *testing.T) {
	f := newQueryFixture(t, 8)
	f.append(t, f.now.AddDate(0, 0, -9), 200, nil) // 超出保留期，不参与统计
	f.append(t, f.now.Add(-1*time.Hour), 70, nil)

	summary, err := f.svc.Summary(context.Background(), f.deviceID, 30)
	require.NoError(t, err)
	require.Equal(t, 1, summary.HeartRate.Count)
	require.Equal(t, 70, summary.HeartRate.Max)
}

func TestSummary_EmptyWindowHasZeroCount(t *testing.T) {
	f := newQueryFixture(t, 8)

	summary, err := f.svc.Summary(context.Background(), f.deviceID, 7)
	require.NoError(t, err)
	require.Equal(t, 0, summary.HeartRate.Count)
	require.Equal(t, 0, summary.SpO2.Count)
}

func TestAuthorizeDevice_Roles(t *testing.T) {
	f := newQueryFixture(t, 8)

	_, err := f.svc.AuthorizeDevice(context.Background(), domain.Principal{ID: "patient-1", Role: domain.RolePatient}, f.deviceID)
	require.NoError(t, err)

	_, err = f.svc.AuthorizeDevice(context.Background(), domain.Principal{ID: "patient-2", Role: domain.RolePatient}, f.deviceID)
	require.ErrorIs(t, err, ErrForbidden)

	// 未分配的医生被拒，分配后放行
	_, err = f.svc.AuthorizeDevice(context.Background(), domain.Principal{ID: "dr-1", Role: domain.RolePhysician}, f.deviceID)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.patients.AddPhysician(context.Background(), "patient-1", "dr-1"))
	_, err = f.svc.AuthorizeDevice(context.Background(), domain.Principal{ID: "dr-1", Role: domain.RolePhysician}, f.deviceID)
	require.NoError(t, err)
}

func TestPhysicianPatientsSummary_FanOut(t *testing.T) {
	f := newQueryFixture(t, 8)
	ctx := context.Background()

	for _, p := range []*domain.Patient{
		{PatientID: "patient-1", Name: "Ann"},
		{PatientID: "patient-2", Name: "Bob"},
	} {
		_, err := f.patients.CreatePatient(ctx, p)
		require.NoError(t, err)
		require.NoError(t, f.patients.AddPhysician(ctx, p.PatientID, "dr-1"))
	}

	f.append(t, f.now.Add(-1*time.Hour), 64, nil)
	_, err := f.readings.Append(ctx, &domain.Reading{
		DeviceID:    "other-device",
		PatientID:   "patient-2",
		HeartRate:   90,
		ReadingTime: f.now.Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	entries, err := f.svc.PhysicianPatientsSummary(ctx, "dr-1", 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]*domain.VitalsSummary{}
	for _, e := range entries {
		byID[e.Patient.PatientID] = e.Summary
	}
	require.Equal(t, 64, byID["patient-1"].HeartRate.Avg)
	require.Equal(t, 90, byID["patient-2"].HeartRate.Avg)
}

func TestLatestVitals_StoreFallback(t *testing.T) {
	f := newQueryFixture(t, 8)
	f.append(t, f.now.Add(-2*time.Hour), 66, intPtr(98))
	f.append(t, f.now.Add(-1*time.Hour), 71, nil)

	latest, err := f.svc.LatestVitals(context.Background(), f.deviceID)
	require.NoError(t, err)
	require.Equal(t, 71, latest["heart_rate"])
}

func TestLatestVitals_NoReadings(t *testing.T) {
	f := newQueryFixture(t, 8)

	_, err := f.svc.LatestVitals(context.Background(), f.deviceID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
