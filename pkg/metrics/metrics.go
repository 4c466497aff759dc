package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 运营侧可观测指标：部分通知失败对求助者不可见，但必须让运维看得到
var (
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_alerts_triggered_total",
		Help: "Total alerts created, labelled by trigger kind.",
	}, []string{"trigger"})

	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_alerts_resolved_total",
		Help: "Total alerts resolved.",
	})

	AlertsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_alerts_abandoned_total",
		Help: "Alerts flagged for manual follow-up after an irrecoverable step.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_notifications_sent_total",
		Help: "Successful channel sends, labelled by channel.",
	}, []string{"channel"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_notifications_failed_total",
		Help: "Failed channel sends, labelled by channel.",
	}, []string{"channel"})

	NotificationsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_notifications_deduped_total",
		Help: "Sends suppressed by the dedupe ledger.",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guard_relay_rooms_active",
		Help: "Currently open relay rooms.",
	})

	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_relay_signals_total",
		Help: "Signaling messages forwarded, labelled by type.",
	}, []string{"type"})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_relay_signals_dropped_total",
		Help: "Signaling messages dropped (unknown room or malformed).",
	})

	StorageDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guard_storage_degraded",
		Help: "1 when the primary store has failed over to the in-memory fallback.",
	})
)

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
