package handlers

import (
	"HibiscusGuard/internal/coordinator"
	"HibiscusGuard/internal/store"
	"HibiscusGuard/pkg/location"
	"HibiscusGuard/pkg/metrics"
	"HibiscusGuard/pkg/middleware"
	"HibiscusGuard/pkg/sse"
	"HibiscusGuard/pkg/storage"

	"github.com/gin-gonic/gin"
)

// Handlers 聚合所有HTTP处理器的依赖
type Handlers struct {
	store    *store.Resilient
	coord    *coordinator.Coordinator
	loc      *location.Provider
	evidence *storage.EvidenceStore
	events   *sse.Hub
}

func New(st *store.Resilient, coord *coordinator.Coordinator, loc *location.Provider,
	ev *storage.EvidenceStore, events *sse.Hub) *Handlers {
	return &Handlers{store: st, coord: coord, loc: loc, evidence: ev, events: events}
}

// RegisterRoutes 统一注册路由
// deviceSecret 非空时开放设备桥接触发入口（穿戴/传感器网关走签名校验）
func (h *Handlers) RegisterRoutes(r *gin.Engine, deviceSecret string) {
	idem := middleware.Idempotency(middleware.IdempotencyConfig{})

	api := r.Group("/api")
	{
		api.POST("/alerts", idem, h.CreateAlert)
		if deviceSecret != "" {
			api.POST("/alerts/device", middleware.DeviceSignVerify(deviceSecret), idem, h.CreateAlert)
		}
		api.POST("/alerts/voice", h.VoiceTrigger)
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.POST("/alerts/:id/evidence", h.UploadEvidence)
		api.GET("/alerts/:id/events", h.AlertEvents)

		api.POST("/location", h.ReportLocation)

		api.POST("/contacts", h.SaveContact)
		api.GET("/contacts", h.ListContacts)
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", metrics.Handler())
}
