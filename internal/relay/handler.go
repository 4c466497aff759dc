package relay

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler 信令HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的信令处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 统一注册路由
func RegisterRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/relay/ws", handler.HandleSignaling)
	r.GET("/relay/stats", handler.GetStats)
}

// HandleSignaling 处理信令连接请求
// 身份由上游网关注入；这里只要求带上用户标识
func (h *Handler) HandleSignaling(c *gin.Context) {
	userID := c.Query("user")
	if userID == "" {
		userID = c.GetHeader("X-User-ID")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}
	HandleWebSocket(h.hub, c.Writer, c.Request, userID)
}

// GetStats 获取中继统计信息
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_rooms":       h.hub.RoomCount(),
		"heartbeat_interval": h.hub.config.HeartbeatInterval.String(),
		"connection_timeout": h.hub.config.ConnectionTimeout.String(),
		"idle_room_ttl":      h.hub.config.IdleRoomTTL.String(),
		"timestamp":          time.Now().Unix(),
	})
}
