package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Event 警报事件；推给订阅该警报的观看页
type Event struct {
	Type    string      `json:"type"` // status / location / resolved
	AlertID string      `json:"alertId"`
	Data    interface{} `json:"data,omitempty"`
	Time    int64       `json:"time"`
}

type subscriber struct {
	id      string
	alertID string
	ch      chan string
	done    chan struct{}
}

// Hub 警报事件的SSE分发器
// 联系人点开短信里的观看链接后订阅对应警报，状态变化即时可见
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber
	byAlert  map[string]map[string]bool // alertID -> subscriber ID set
	interval time.Duration
	retryMs  int
	nextID   int64
}

func NewHub(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		subs:     make(map[string]*subscriber),
		byAlert:  make(map[string]map[string]bool),
		interval: pingInterval,
		retryMs:  5000,
	}
}

func (h *Hub) subscribe(alertID string) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscriber{
		id:      fmt.Sprintf("sub_%d", h.nextID),
		alertID: alertID,
		ch:      make(chan string, 64),
		done:    make(chan struct{}),
	}
	h.subs[s.id] = s
	if h.byAlert[alertID] == nil {
		h.byAlert[alertID] = make(map[string]bool)
	}
	h.byAlert[alertID][s.id] = true
	return s
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	if s, ok := h.subs[id]; ok {
		close(s.done)
		if h.byAlert[s.alertID] != nil {
			delete(h.byAlert[s.alertID], id)
		}
		delete(h.subs, id)
	}
	h.mu.Unlock()
}

// Publish 向某警报的所有订阅者推送事件；没有订阅者时直接丢弃
func (h *Hub) Publish(alertID string, ev Event) {
	if ev.Time == 0 {
		ev.Time = time.Now().Unix()
	}
	b, _ := json.Marshal(ev)
	msg := formatData(string(b))

	h.mu.RLock()
	for id := range h.byAlert[alertID] {
		if s := h.subs[id]; s != nil {
			select {
			case s.ch <- msg:
			default:
				// 慢订阅者丢消息，不阻塞发布方
			}
		}
	}
	h.mu.RUnlock()
}

// SubscriberCount 某警报当前的订阅数
func (h *Hub) SubscriberCount(alertID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byAlert[alertID])
}

func formatData(s string) string { return fmt.Sprintf("data: %s\n\n", s) }

// Serve 把请求升级为事件流并阻塞直到连接断开
func (h *Hub) Serve(c *gin.Context, alertID string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	sub := h.subscribe(alertID)
	defer h.unsubscribe(sub.id)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-sub.ch:
			c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
