package httpapi

import (
	"net/http"

	"hearttrack-data/internal/service"

	"go.uber.org/zap"
)

// TelemetryHandler 设备遥测接入端点
// 响应形态面向固件：{message, received[, id]}，不走 Result 封装
// 所有拒绝响应都回显原始载荷，便于现场排障
type TelemetryHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

func NewTelemetryHandler(ingest *service.IngestService, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{ingest: ingest, logger: logger}
}

// Ingest POST /telemetry
func (h *TelemetryHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "invalid JSON body",
		})
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	res := h.ingest.Ingest(r.Context(), payload)
	switch res.Outcome {
	case service.OutcomeAccepted:
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":  "Reading stored",
			"id":       res.ReadingID,
			"received": payload,
		})
	case service.OutcomeIgnored:
		// 哨兵读数：确认但不持久化
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "Reading ignored (no measurement)",
			"received": payload,
		})
	case service.OutcomeUnauthorized:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message":  res.Reason,
			"received": payload,
		})
	case service.OutcomeInvalid:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":  res.Reason,
			"received": payload,
		})
	case service.OutcomeUnknownDevice:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message":  res.Reason,
			"received": payload,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message":  "failed to store reading",
			"received": payload,
		})
	}
}

// Echo POST /telemetry/echo 固件连通性自检：原样回显，不校验不落库
func (h *TelemetryHandler) Echo(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "invalid JSON body",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "echo",
		"received": payload,
	})
}
