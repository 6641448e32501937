package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"hearttrack-data/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestMemoryReadingsRepo_WindowQueryOrdered(t *testing.T) {
	repo := NewMemoryReadingsRepo()
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	// 乱序写入
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		_, err := repo.Append(ctx, &domain.Reading{
			DeviceID:    "device-1",
			PatientID:   "patient-1",
			HeartRate:   70,
			ReadingTime: base.Add(offset),
		})
		require.NoError(t, err)
	}
	// 窗口外
	_, err := repo.Append(ctx, &domain.Reading{
		DeviceID:    "device-1",
		PatientID:   "patient-1",
		HeartRate:   70,
		ReadingTime: base.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	out, err := repo.QueryByDevice(ctx, "device-1", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		require.False(t, out[i].ReadingTime.Before(out[i-1].ReadingTime), "readings must be ascending by reading_time")
	}
}

func TestMemoryReadingsRepo_ConcurrentAppends(t *testing.T) {
	repo := NewMemoryReadingsRepo()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, &domain.Reading{
				DeviceID:    "device-1",
				PatientID:   "patient-1",
				HeartRate:   60 + i%40,
				ReadingTime: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	out, err := repo.QueryByDevice(ctx, "device-1", base, base.Add(200*time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 100, "all concurrent appends must be stored and retrievable")

	seen := map[int64]bool{}
	for _, rd := range out {
		require.False(t, seen[rd.ID], "no duplicate ids")
		seen[rd.ID] = true
	}
}

func TestMemoryReadingsRepo_DeleteOlderThan(t *testing.T) {
	repo := NewMemoryReadingsRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.Append(ctx, &domain.Reading{
		DeviceID: "device-1", PatientID: "patient-1", HeartRate: 70,
		ReadingTime: now.AddDate(0, 0, -9),
	})
	require.NoError(t, err)
	_, err = repo.Append(ctx, &domain.Reading{
		DeviceID: "device-1", PatientID: "patient-1", HeartRate: 72,
		ReadingTime: now,
	})
	require.NoError(t, err)

	removed, err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -8))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.Equal(t, 1, repo.Count())
}
