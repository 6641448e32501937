package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/store"

	"go.uber.org/zap"
)

// DefaultSummaryWindowDays 滚动窗口统计的默认窗宽
const DefaultSummaryWindowDays = 7

// ReadingQueryService 聚合引擎：单日明细序列 + 滚动窗口统计
// 只读；与接入并发运行，不保证 read-your-writes（刚写入的读数可能不出现在
// 紧随其后的查询结果里）
type ReadingQueryService struct {
	readings      repository.ReadingsRepository
	devices       repository.DevicesRepository
	patients      repository.PatientsRepository
	kv            store.KV // optional
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

func NewReadingQueryService(
	readings repository.ReadingsRepository,
	devices repository.DevicesRepository,
	patients repository.PatientsRepository,
	kv store.KV,
	retentionDays int,
	logger *zap.Logger,
) *ReadingQueryService {
	return &ReadingQueryService{
		readings:      readings,
		devices:       devices,
		patients:      patients,
		kv:            kv,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// AuthorizeDevice 校验主体可读该设备：患者须为设备归属人，医生须在归属
// 患者的照护团队里。返回设备记录供后续查询复用
func (s *ReadingQueryService) AuthorizeDevice(ctx context.Context, principal domain.Principal, deviceID string) (*domain.Device, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.PatientID.Valid {
		// 未认领设备对任何主体都不可见
		return nil, repository.ErrNotFound
	}
	switch principal.Role {
	case domain.RolePatient:
		if device.PatientID.String != principal.ID {
			return nil, ErrForbidden
		}
	case domain.RolePhysician:
		assigned, err := s.patients.IsAssigned(ctx, device.PatientID.String, principal.ID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	return device, nil
}

// DailySeries 指定 UTC 日的全部读数，映射为 {x,y} 点序列，升序
// 缺失的 SpO2 以 null 点保留（不丢弃、不压成 0）
func (s *ReadingQueryService) DailySeries(ctx context.Context, deviceID string, day time.Time) (*domain.DailySeries, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Nanosecond)

	start = s.clampToRetention(start)
	if start.After(end) {
		// 整个窗口已过保留期
		return &domain.DailySeries{HeartRate: []domain.MetricPoint{}, SpO2: []domain.MetricPoint{}}, nil
	}

	rows, err := s.readings.QueryByDevice(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}

	series := &domain.DailySeries{
		HeartRate: make([]domain.MetricPoint, 0, len(rows)),
		SpO2:      make([]domain.MetricPoint, 0, len(rows)),
	}
	for _, r := range rows {
		hr := r.HeartRate
		series.HeartRate = append(series.HeartRate, domain.MetricPoint{X: r.ReadingTime, Y: &hr})
		series.SpO2 = append(series.SpO2, domain.MetricPoint{X: r.ReadingTime, Y: r.SpO2})
	}
	return series, nil
}

// Summary 设备最近 windowDays 天的 {avg,min,max,count}
// 窗口内无数据时返回零值统计（count=0），不报错
func (s *ReadingQueryService) Summary(ctx context.Context, deviceID string, windowDays int) (*domain.VitalsSummary, error) {
	start, end := s.window(windowDays)
	rows, err := s.readings.QueryByDevice(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	return aggregate(rows), nil
}

// PatientSummary 患者全部设备的窗口统计（单个患者单次聚合）
func (s *ReadingQueryService) PatientSummary(ctx context.Context, patientID string, windowDays int) (*domain.VitalsSummary, error) {
	start, end := s.window(windowDays)
	rows, err := s.readings.QueryByPatient(ctx, patientID, start, end)
	if err != nil {
		return nil, err
	}
	return aggregate(rows), nil
}

// PatientSummaryEntry 医生面板里单个患者的统计
type PatientSummaryEntry struct {
	Patient *domain.Patient
	Summary *domain.VitalsSummary
}

// PhysicianPatientsSummary 医生视图：对每个在册患者独立跑一次聚合（逐患者
// fan-out，不做跨患者合并扫描）
func (s *ReadingQueryService) PhysicianPatientsSummary(ctx context.Context, physicianID string, windowDays int) ([]PatientSummaryEntry, error) {
	patients, err := s.patients.ListPatientsByPhysician(ctx, physicianID)
	if err != nil {
		return nil, err
	}
	out := make([]PatientSummaryEntry, 0, len(patients))
	for _, p := range patients {
		summary, err := s.PatientSummary(ctx, p.PatientID, windowDays)
		if err != nil {
			// 单个患者聚合失败不拖垮整个面板
			s.logger.Error("patient summary failed", zap.Error(err), zap.String("patient_id", p.PatientID))
			summary = &domain.VitalsSummary{}
		}
		out = append(out, PatientSummaryEntry{Patient: p, Summary: summary})
	}
	return out, nil
}

// LatestVitals 设备最近一次读数：优先 KV 快照，未命中回源存储
func (s *ReadingQueryService) LatestVitals(ctx context.Context, deviceID string) (map[string]any, error) {
	if s.kv != nil {
		if raw, err := s.kv.Get(ctx, latestVitalsKeyPrefix+deviceID); err == nil {
			var snapshot map[string]any
			if err := json.Unmarshal([]byte(raw), &snapshot); err == nil {
				return snapshot, nil
			}
		} else if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("latest vitals cache read failed", zap.Error(err))
		}
	}

	reading, err := s.readings.LatestByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if s.retentionDays > 0 && reading.ReadingTime.Before(s.now().UTC().AddDate(0, 0, -s.retentionDays)) {
		// 存量里只剩过期数据时视同无数据
		return nil, repository.ErrNotFound
	}
	return map[string]any{
		"reading_id":   reading.ID,
		"heart_rate":   reading.HeartRate,
		"spo2":         reading.SpO2,
		"reading_time": reading.ReadingTime,
	}, nil
}

// WeeklyReadings 导出用：最近一周明细，升序
func (s *ReadingQueryService) WeeklyReadings(ctx context.Context, deviceID string) ([]*domain.Reading, error) {
	start, end := s.window(DefaultSummaryWindowDays)
	return s.readings.QueryByDevice(ctx, deviceID, start, end)
}

func (s *ReadingQueryService) window(windowDays int) (time.Time, time.Time) {
	if windowDays <= 0 {
		windowDays = DefaultSummaryWindowDays
	}
	end := s.now().UTC()
	start := s.clampToRetention(end.AddDate(0, 0, -windowDays))
	return start, end
}

// clampToRetention 查询下界不早于保留边界：过期读数即刻不可达，
// 无需等后台清理真正删除
func (s *ReadingQueryService) clampToRetention(start time.Time) time.Time {
	if s.retentionDays <= 0 {
		return start
	}
	boundary := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if start.Before(boundary) {
		return boundary
	}
	return start
}

// aggregate 单趟扫描计算两项指标的 avg/min/max/count
func aggregate(rows []*domain.Reading) *domain.VitalsSummary {
	var (
		hrSum, hrMin, hrMax, hrCount int
		oxSum, oxMin, oxMax, oxCount int
	)
	for _, r := range rows {
		if hrCount == 0 || r.HeartRate < hrMin {
			hrMin = r.HeartRate
		}
		if hrCount == 0 || r.HeartRate > hrMax {
			hrMax = r.HeartRate
		}
		hrSum += r.HeartRate
		hrCount++

		if r.SpO2 != nil {
			v := *r.SpO2
			if oxCount == 0 || v < oxMin {
				oxMin = v
			}
			if oxCount == 0 || v > oxMax {
				oxMax = v
			}
			oxSum += v
			oxCount++
		}
	}

	summary := &domain.VitalsSummary{}
	if hrCount > 0 {
		summary.HeartRate = domain.MetricSummary{
			Avg:   int(math.Round(float64(hrSum) / float64(hrCount))),
			Min:   hrMin,
			Max:   hrMax,
			Count: hrCount,
		}
	}
	if oxCount > 0 {
		summary.SpO2 = domain.MetricSummary{
			Avg:   int(math.Round(float64(oxSum) / float64(oxCount))),
			Min:   oxMin,
			Max:   oxMax,
			Count: oxCount,
		}
	}
	return summary
}
