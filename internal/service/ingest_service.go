package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hearttrack-data/internal/domain"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/store"
	"hearttrack-data/internal/telemetry"

	"go.uber.org/zap"
)

// 单次存储调用的超时上限：超时按 OutcomeFailed 上报而不是挂起
const storageTimeout = 5 * time.Second

// 最新体征快照缓存
const (
	latestVitalsKeyPrefix = "vitals:latest:"
	latestVitalsTTL       = 24 * time.Hour
)

// IngestOutcome 单次接入的终态
// Received → Validated → OwnerResolved → Persisted → Acknowledged，任一阶段可提前退出
type IngestOutcome int

const (
	// OutcomeAccepted 已持久化
	OutcomeAccepted IngestOutcome = iota
	// OutcomeIgnored 哨兵心率：按 no-op 接受，不持久化，不计失败
	OutcomeIgnored
	// OutcomeUnauthorized API key 校验失败
	OutcomeUnauthorized
	// OutcomeInvalid 载荷不合法（缺 hardwareId / 越界）
	OutcomeInvalid
	// OutcomeUnknownDevice 设备未注册或未被患者认领
	OutcomeUnknownDevice
	// OutcomeFailed 存储失败（调用方可退避重试；重复读数可接受）
	OutcomeFailed
)

// IngestResult 接入结果
type IngestResult struct {
	Outcome   IngestOutcome
	Reason    string
	ReadingID int64
}

// IngestService 遥测接入编排：校验 → 设备解析 → 持久化 → 确认
// 请求之间相互独立，可完全并行；同设备并发读数的落库顺序不保证
type IngestService struct {
	devices  repository.DevicesRepository
	readings repository.ReadingsRepository
	kv       store.KV // optional
	apiKey   string
	logger   *zap.Logger
	now      func() time.Time
}

func NewIngestService(
	devices repository.DevicesRepository,
	readings repository.ReadingsRepository,
	kv store.KV,
	apiKey string,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		devices:  devices,
		readings: readings,
		kv:       kv,
		apiKey:   apiKey,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest 处理一条原始遥测载荷
func (s *IngestService) Ingest(ctx context.Context, payload map[string]any) IngestResult {
	// 1. 校验/标准化（纯函数）
	verdict := telemetry.Validate(payload, s.apiKey)
	switch verdict.Status {
	case telemetry.StatusUnauthorized:
		return IngestResult{Outcome: OutcomeUnauthorized, Reason: verdict.Reason}
	case telemetry.StatusMissingDeviceID, telemetry.StatusOutOfRange:
		return IngestResult{Outcome: OutcomeInvalid, Reason: verdict.Reason}
	case telemetry.StatusIgnored:
		// 设备声明"无测量"：不是错误，不落库
		s.logger.Debug("telemetry reading ignored", zap.String("reason", verdict.Reason))
		return IngestResult{Outcome: OutcomeIgnored, Reason: verdict.Reason}
	}
	candidate := verdict.Candidate

	// 2. 设备解析：未注册或未认领都按未知处理（读数必须有归属患者）
	device, err := s.devices.ResolveByHardwareID(ctx, candidate.HardwareID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return IngestResult{
				Outcome: OutcomeUnknownDevice,
				Reason:  "Unknown deviceId: " + candidate.HardwareID,
			}
		}
		s.logger.Error("device lookup failed", zap.Error(err), zap.String("hardware_id", candidate.HardwareID))
		return IngestResult{Outcome: OutcomeFailed, Reason: "device lookup failed"}
	}
	if !device.PatientID.Valid {
		return IngestResult{
			Outcome: OutcomeUnknownDevice,
			Reason:  "Unknown deviceId: " + candidate.HardwareID,
		}
	}

	// 3. 持久化
	receivedAt := s.now().UTC()
	readingTime := receivedAt
	if candidate.ReadingTime != nil {
		readingTime = *candidate.ReadingTime
	}
	raw, _ := json.Marshal(payload)

	reading := &domain.Reading{
		DeviceID:    device.DeviceID,
		PatientID:   device.PatientID.String,
		HeartRate:   candidate.HeartRate,
		SpO2:        candidate.SpO2,
		ReadingTime: readingTime,
		Raw:         raw,
	}

	writeCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	id, err := s.readings.Append(writeCtx, reading)
	if err != nil {
		s.logger.Error("failed to persist reading",
			zap.Error(err),
			zap.String("device_id", device.DeviceID),
		)
		return IngestResult{Outcome: OutcomeFailed, Reason: "failed to store reading"}
	}

	// 4. best-effort 副作用：last_seen_at + 最新体征快照（失败不影响确认）
	if err := s.devices.TouchLastSeen(ctx, device.DeviceID, receivedAt); err != nil {
		s.logger.Warn("failed to update device last_seen_at", zap.Error(err), zap.String("device_id", device.DeviceID))
	}
	s.cacheLatest(ctx, device.DeviceID, reading, id)

	s.logger.Info("telemetry reading stored",
		zap.Int64("reading_id", id),
		zap.String("hardware_id", candidate.HardwareID),
		zap.Int("heart_rate", candidate.HeartRate),
		zap.Time("reading_time", readingTime),
	)
	return IngestResult{Outcome: OutcomeAccepted, ReadingID: id}
}

// cacheLatest 按 reading_time 维护快照：补传的历史读数不会顶掉更新的快照
// best-effort，无跨写入者的原子性保证
func (s *IngestService) cacheLatest(ctx context.Context, deviceID string, reading *domain.Reading, id int64) {
	if s.kv == nil {
		return
	}
	if cur, err := s.kv.Get(ctx, latestVitalsKeyPrefix+deviceID); err == nil {
		var existing struct {
			ReadingTime time.Time `json:"reading_time"`
		}
		if json.Unmarshal([]byte(cur), &existing) == nil && existing.ReadingTime.After(reading.ReadingTime) {
			return
		}
	}
	snapshot := map[string]any{
		"reading_id":   id,
		"heart_rate":   reading.HeartRate,
		"spo2":         reading.SpO2,
		"reading_time": reading.ReadingTime,
	}
	buf, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, latestVitalsKeyPrefix+deviceID, string(buf), latestVitalsTTL); err != nil {
		s.logger.Warn("failed to cache latest vitals", zap.Error(err), zap.String("device_id", deviceID))
	}
}
