package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"hearttrack-data/internal/service"

	"go.uber.org/zap"
)

// TelemetryBroker MQTT 遥测通道：固件经 broker 上报与 HTTP 同构的 JSON 载荷
// 校验/落库复用 IngestService，两条通道语义一致
type TelemetryBroker struct {
	ingest *service.IngestService
	logger *zap.Logger
}

func NewTelemetryBroker(ingest *service.IngestService, logger *zap.Logger) *TelemetryBroker {
	return &TelemetryBroker{ingest: ingest, logger: logger}
}

// HandleMessage 处理单条 MQTT 遥测消息
// MQTT 通道没有"响应"可言：被拒/被忽略的读数只记日志，设备不重试
func (b *TelemetryBroker) HandleMessage(topic string, payload []byte) error {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("failed to unmarshal telemetry message: %w", err)
	}

	res := b.ingest.Ingest(context.Background(), body)
	switch res.Outcome {
	case service.OutcomeAccepted:
		b.logger.Debug("MQTT reading stored",
			zap.String("topic", topic),
			zap.Int64("reading_id", res.ReadingID),
		)
	case service.OutcomeIgnored:
		b.logger.Debug("MQTT reading ignored", zap.String("topic", topic))
	case service.OutcomeFailed:
		return fmt.Errorf("failed to store MQTT reading: %s", res.Reason)
	default:
		b.logger.Warn("MQTT reading rejected",
			zap.String("topic", topic),
			zap.String("reason", res.Reason),
		)
	}
	return nil
}
