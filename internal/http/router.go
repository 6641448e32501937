package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 pprof 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 固件上报通道
func (r *Router) RegisterTelemetryRoutes(t *TelemetryHandler) {
	r.Handle("/telemetry", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t.Ingest(w, req)
	})

	r.Handle("/telemetry/echo", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t.Echo(w, req)
	})
}

// RegisterReadingsRoutes 图表/统计查询: /readings/{deviceId}/{daily|summary|latest|export}
func (r *Router) RegisterReadingsRoutes(h *ReadingsHandler) {
	r.Handle("/readings/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/readings/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		deviceID := parts[0]
		switch parts[1] {
		case "daily":
			h.Daily(w, req, deviceID)
		case "summary":
			h.Summary(w, req, deviceID)
		case "latest":
			h.Latest(w, req, deviceID)
		case "export":
			h.Export(w, req, deviceID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterDeviceRoutes 设备档案管理
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.Handle("/devices", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.Register(w, req)
		case http.MethodGet:
			h.ListMine(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/devices/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/devices/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			deviceID := parts[0]
			switch req.Method {
			case http.MethodGet:
				h.Get(w, req, deviceID)
			case http.MethodPatch, http.MethodPut:
				h.Update(w, req, deviceID)
			case http.MethodDelete:
				h.Delete(w, req, deviceID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "claim":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Claim(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterPatientRoutes 患者档案、照护关系、医生面板
func (r *Router) RegisterPatientRoutes(h *PatientHandler) {
	r.Handle("/patients", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Create(w, req)
	})

	r.Handle("/patients/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/patients/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Get(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "summary":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Summary(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "physicians":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.AddPhysician(w, req, parts[0])
		case len(parts) == 3 && parts[1] == "physicians" && parts[2] != "":
			switch req.Method {
			case http.MethodPost:
				h.AddPhysicianByID(w, req, parts[0], parts[2])
			case http.MethodDelete:
				h.RemovePhysician(w, req, parts[0], parts[2])
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	r.Handle("/physicians/me/patients", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.PhysicianDashboard(w, req)
	})
}

// RegisterHealthRoutes 存活探针
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
}
