package repository

import (
	"context"
	"testing"
	"time"

	"hearttrack-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var readingCols = []string{
	"id", "device_id", "patient_id", "heart_rate", "spo2", "reading_time", "raw", "created_at",
}

func TestPostgresReadingsRepo_AppendReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepo(db)

	readingTime := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	spo2 := 97
	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs("device-1", "patient-1", 72, sqlmock.AnyArg(), readingTime, []byte(`{"k":1}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

	id, err := repo.Append(context.Background(), &domain.Reading{
		DeviceID:    "device-1",
		PatientID:   "patient-1",
		HeartRate:   72,
		SpO2:        &spo2,
		ReadingTime: readingTime,
		Raw:         []byte(`{"k":1}`),
	})
	require.NoError(t, err)
	require.Equal(t, int64(41), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadingsRepo_QueryByDeviceScansNullSpO2(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepo(db)

	t1 := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT\s+id,`).
		WithArgs("device-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(readingCols).
			AddRow(int64(1), "device-1", "patient-1", 70, nil, t1, nil, t1).
			AddRow(int64(2), "device-1", "patient-1", 75, 98, t2, nil, t2))

	out, err := repo.QueryByDevice(context.Background(), "device-1", t1, t2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Nil(t, out[0].SpO2, "missing spo2 must stay unset, not become 0")
	require.NotNil(t, out[1].SpO2)
	require.Equal(t, 98, *out[1].SpO2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadingsRepo_LatestByDeviceNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepo(db)

	mock.ExpectQuery(`ORDER BY reading_time DESC`).
		WithArgs("device-unknown").
		WillReturnRows(sqlmock.NewRows(readingCols))

	_, err = repo.LatestByDevice(context.Background(), "device-unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresReadingsRepo_DeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepo(db)

	cutoff := time.Now().AddDate(0, 0, -8)
	mock.ExpectExec(`DELETE FROM readings WHERE reading_time`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
