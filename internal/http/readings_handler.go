package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/service"

	"go.uber.org/zap"
)

// ReadingsHandler 图表/统计查询端点
// 响应形态面向前端图表：daily 直接输出 {x,y} 序列，summary 输出 avg/min/max/count
type ReadingsHandler struct {
	queries *service.ReadingQueryService
	logger  *zap.Logger
}

func NewReadingsHandler(queries *service.ReadingQueryService, logger *zap.Logger) *ReadingsHandler {
	return &ReadingsHandler{queries: queries, logger: logger}
}

// Daily GET /readings/{deviceId}/daily?date=YYYY-MM-DD
// date 缺省为今天（UTC）
func (h *ReadingsHandler) Daily(w http.ResponseWriter, r *http.Request, deviceID string) {
	_, device, ok := h.authorize(w, r, deviceID)
	if !ok {
		return
	}

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw),
			})
			return
		}
		day = parsed
	}

	series, err := h.queries.DailySeries(r.Context(), device.DeviceID, day)
	if err != nil {
		h.logger.Error("daily series query failed", zap.Error(err), zap.String("device_id", deviceID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    series,
	})
}

// Summary GET /readings/{deviceId}/summary?days=7
func (h *ReadingsHandler) Summary(w http.ResponseWriter, r *http.Request, deviceID string) {
	_, device, ok := h.authorize(w, r, deviceID)
	if !ok {
		return
	}

	days := parseInt(r.URL.Query().Get("days"), service.DefaultSummaryWindowDays)
	summary, err := h.queries.Summary(r.Context(), device.DeviceID, days)
	if err != nil {
		h.logger.Error("summary query failed", zap.Error(err), zap.String("device_id", deviceID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": summary,
	})
}

// Latest GET /readings/{deviceId}/latest
func (h *ReadingsHandler) Latest(w http.ResponseWriter, r *http.Request, deviceID string) {
	_, device, ok := h.authorize(w, r, deviceID)
	if !ok {
		return
	}

	latest, err := h.queries.LatestVitals(r.Context(), device.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "no readings for device"})
			return
		}
		h.logger.Error("latest vitals query failed", zap.Error(err), zap.String("device_id", deviceID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"latest":  latest,
	})
}

// Export GET /readings/{deviceId}/export 最近一周读数导出为 Excel
func (h *ReadingsHandler) Export(w http.ResponseWriter, r *http.Request, deviceID string) {
	_, device, ok := h.authorize(w, r, deviceID)
	if !ok {
		return
	}

	rows, err := h.queries.WeeklyReadings(r.Context(), device.DeviceID)
	if err != nil {
		h.logger.Error("export query failed", zap.Error(err), zap.String("device_id", deviceID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		return
	}

	buf, err := GenerateReadingsExport(device, rows)
	if err != nil {
		h.logger.Error("export generation failed", zap.Error(err), zap.String("device_id", deviceID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "export failed"})
		return
	}

	filename := fmt.Sprintf("readings-%s-%s.xlsx", device.HardwareID, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

// authorize 统一的主体解析 + 设备访问校验；失败时已写响应
func (h *ReadingsHandler) authorize(w http.ResponseWriter, r *http.Request, deviceID string) (principalID string, device *deviceRef, ok bool) {
	principal, valid := principalFrom(r)
	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "missing or invalid identity headers"})
		return "", nil, false
	}

	d, err := h.queries.AuthorizeDevice(r.Context(), principal, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "access to device denied"})
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "device not found"})
		default:
			h.logger.Error("device authorization failed", zap.Error(err), zap.String("device_id", deviceID))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		}
		return "", nil, false
	}
	return principal.ID, &deviceRef{DeviceID: d.DeviceID, HardwareID: d.HardwareID, Label: d.Label}, true
}

// deviceRef 鉴权后传递给查询的最小设备信息
type deviceRef struct {
	DeviceID   string
	HardwareID string
	Label      string
}
