package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"hearttrack-data/internal/domain"
)

// MemoryReadingsRepo 内存实现：append-only + 时间窗查询
// 写入并发安全；查询返回按 reading_time 升序的副本
type MemoryReadingsRepo struct {
	mu       sync.RWMutex
	nextID   int64
	readings []*domain.Reading
}

func NewMemoryReadingsRepo() *MemoryReadingsRepo {
	return &MemoryReadingsRepo{nextID: 1}
}

var _ ReadingsRepository = (*MemoryReadingsRepo)(nil)

func (r *MemoryReadingsRepo) Append(_ context.Context, reading *domain.Reading) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reading
	cp.ID = r.nextID
	cp.CreatedAt = time.Now().UTC()
	r.nextID++
	r.readings = append(r.readings, &cp)
	return cp.ID, nil
}

func (r *MemoryReadingsRepo) QueryByDevice(_ context.Context, deviceID string, start, end time.Time) ([]*domain.Reading, error) {
	return r.query(func(rd *domain.Reading) bool { return rd.DeviceID == deviceID }, start, end), nil
}

func (r *MemoryReadingsRepo) QueryByPatient(_ context.Context, patientID string, start, end time.Time) ([]*domain.Reading, error) {
	return r.query(func(rd *domain.Reading) bool { return rd.PatientID == patientID }, start, end), nil
}

func (r *MemoryReadingsRepo) LatestByDevice(_ context.Context, deviceID string) (*domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Reading
	for _, rd := range r.readings {
		if rd.DeviceID != deviceID {
			continue
		}
		if latest == nil || rd.ReadingTime.After(latest.ReadingTime) {
			latest = rd
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryReadingsRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.readings[:0]
	var removed int64
	for _, rd := range r.readings {
		if rd.ReadingTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rd)
	}
	r.readings = kept
	return removed, nil
}

// Count 当前存量（测试用）
func (r *MemoryReadingsRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}

func (r *MemoryReadingsRepo) query(match func(*domain.Reading) bool, start, end time.Time) []*domain.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Reading, 0)
	for _, rd := range r.readings {
		if !match(rd) {
			continue
		}
		if rd.ReadingTime.Before(start) || rd.ReadingTime.After(end) {
			continue
		}
		cp := *rd
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReadingTime.Equal(out[j].ReadingTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReadingTime.Before(out[j].ReadingTime)
	})
	return out
}
