package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"HibiscusGuard/pkg/metrics"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Room 一个中继房间：至多一个推流设备连接，任意个观看端连接
// 设备离线即拆房；观看端可先于 offer 进房，offer 缓存后补发
type Room struct {
	ID            string
	AlertID       string
	device        *Connection
	viewers       map[string]*Connection
	bufferedOffer *webrtc.SessionDescription
	createdAt     time.Time
	lastActivity  time.Time
}

// Config Hub配置
type Config struct {
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	// 无活动房间回收阈值
	IdleRoomTTL time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MessageBufferSize: 256,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxMessageSize:    64 * 1024, // SDP 比聊天消息大得多
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		IdleRoomTTL:       10 * time.Minute,
	}
}

// Hub 信令中继交换机
type Hub struct {
	rooms  map[string]*Room
	config *Config
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:  make(map[string]*Room),
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OpenRoom 协调器开房，绑定警报；重复开房返回已有房间
// Hub 已关闭时返回 nil，调用方按不可恢复失败处理
func (h *Hub) OpenRoom(roomID, alertID string) *Room {
	if h.ctx.Err() != nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[roomID]; ok {
		return room
	}
	room := &Room{
		ID:           roomID,
		AlertID:      alertID,
		viewers:      make(map[string]*Connection),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}
	h.rooms[roomID] = room
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	logrus.Infof("中继房间已创建: %s, 警报: %s", roomID, alertID)
	return room
}

// CloseRoom 拆房并通知所有观看端
func (h *Hub) CloseRoom(roomID, reason string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()
	if !ok {
		return
	}

	notice := &SignalMessage{
		Type:      MessageTypeStreamEnded,
		RoomID:    roomID,
		Payload:   mustJSON(map[string]string{"reason": reason}),
		Timestamp: time.Now().Unix(),
	}
	for _, v := range room.viewers {
		v.send(notice)
		v.detach()
	}
	if room.device != nil {
		room.device.send(notice)
		room.device.detach()
	}
	logrus.Infof("中继房间已关闭: %s, 原因: %s", roomID, reason)
}

// RoomCount 当前房间数
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ViewerCount 指定房间的观看端数量
func (h *Hub) ViewerCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[roomID]; ok {
		return len(room.viewers)
	}
	return 0
}

// BroadcastToRoom 服务侧向房间内所有观看端推送（位置刷新等）
func (h *Hub) BroadcastToRoom(roomID string, msgType string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	msg := &SignalMessage{
		Type:      msgType,
		RoomID:    roomID,
		Payload:   mustJSON(payload),
		Timestamp: time.Now().Unix(),
	}
	for _, v := range room.viewers {
		v.send(msg)
	}
}

// SendToDevice 服务侧向房间内设备连接推送（收尾取证指令等）
func (h *Hub) SendToDevice(roomID string, msgType string, payload interface{}) {
	h.mu.RLock()
	room, ok := h.rooms[roomID]
	var device *Connection
	if ok {
		device = room.device
	}
	h.mu.RUnlock()
	if device == nil {
		return
	}
	device.send(&SignalMessage{
		Type:      msgType,
		RoomID:    roomID,
		Payload:   mustJSON(payload),
		Timestamp: time.Now().Unix(),
	})
}

// joinAsDevice 注册设备连接；已有等待的观看端时立即转发 offer
func (h *Hub) joinAsDevice(conn *Connection, roomID string, payload json.RawMessage) {
	offer, err := parseOffer(payload)
	if err != nil {
		h.dropMessage(conn, roomID, "无效的offer负载", err)
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		h.dropUnknownRoom(conn, MessageTypeJoinDevice, roomID)
		return
	}
	// 同设备重连：旧连接让位
	if room.device != nil && room.device != conn {
		room.device.detach()
	}
	room.device = conn
	room.bufferedOffer = offer
	room.lastActivity = time.Now()
	conn.attach(roomID, RoleDevice)
	viewers := snapshotViewers(room)
	h.mu.Unlock()

	conn.send(&SignalMessage{Type: MessageTypeJoined, RoomID: roomID, Timestamp: time.Now().Unix()})
	metrics.SignalsRelayed.WithLabelValues(MessageTypeOffer).Inc()

	// 已在等的观看端立刻拿到 offer，不需要二次请求
	out := &SignalMessage{Type: MessageTypeOffer, RoomID: roomID, Payload: payload, Timestamp: time.Now().Unix()}
	for _, v := range viewers {
		v.send(out)
	}
	logrus.Infof("设备已加入房间 %s, 等待中的观看端: %d", roomID, len(viewers))
}

// joinAsViewer 注册观看端；offer 已缓存时同一拍内补发
func (h *Hub) joinAsViewer(conn *Connection, roomID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		h.dropUnknownRoom(conn, MessageTypeJoinViewer, roomID)
		return
	}
	room.viewers[conn.ID] = conn
	room.lastActivity = time.Now()
	conn.attach(roomID, RoleViewer)
	buffered := room.bufferedOffer
	h.mu.Unlock()

	conn.send(&SignalMessage{Type: MessageTypeJoined, RoomID: roomID, Timestamp: time.Now().Unix()})
	if buffered != nil {
		payload, _ := json.Marshal(buffered)
		conn.send(&SignalMessage{Type: MessageTypeOffer, RoomID: roomID, Payload: payload, Timestamp: time.Now().Unix()})
		metrics.SignalsRelayed.WithLabelValues(MessageTypeOffer).Inc()
	}
	logrus.Infof("观看端 %s 已加入房间 %s, 缓存offer: %v", conn.ID, roomID, buffered != nil)
}

// relayOffer 设备更新 offer；后写覆盖先写
func (h *Hub) relayOffer(conn *Connection, roomID string, payload json.RawMessage) {
	offer, err := parseOffer(payload)
	if err != nil {
		h.dropMessage(conn, roomID, "无效的offer负载", err)
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok || room.device != conn {
		h.mu.Unlock()
		h.dropUnknownRoom(conn, MessageTypeOffer, roomID)
		return
	}
	room.bufferedOffer = offer
	room.lastActivity = time.Now()
	viewers := snapshotViewers(room)
	h.mu.Unlock()

	out := &SignalMessage{Type: MessageTypeOffer, RoomID: roomID, Payload: payload, Timestamp: time.Now().Unix()}
	for _, v := range viewers {
		v.send(out)
	}
	metrics.SignalsRelayed.WithLabelValues(MessageTypeOffer).Inc()
}

// relayAnswer 观看端应答只发往设备连接
func (h *Hub) relayAnswer(conn *Connection, roomID string, payload json.RawMessage) {
	if _, err := parseAnswer(payload); err != nil {
		h.dropMessage(conn, roomID, "无效的answer负载", err)
		return
	}

	h.mu.RLock()
	room, ok := h.rooms[roomID]
	var device *Connection
	if ok {
		if _, isViewer := room.viewers[conn.ID]; isViewer {
			device = room.device
		}
	}
	h.mu.RUnlock()

	if !ok || device == nil {
		h.dropUnknownRoom(conn, MessageTypeAnswer, roomID)
		return
	}
	device.send(&SignalMessage{Type: MessageTypeAnswer, RoomID: roomID, Payload: payload, From: conn.ID, Timestamp: time.Now().Unix()})
	metrics.SignalsRelayed.WithLabelValues(MessageTypeAnswer).Inc()
}

// relayCandidate 网络路径候选发往对端角色，绝不出房间
func (h *Hub) relayCandidate(conn *Connection, roomID string, payload json.RawMessage) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		h.dropMessage(conn, roomID, "无效的candidate负载", err)
		return
	}

	_, role := conn.where()
	h.mu.RLock()
	room, ok := h.rooms[roomID]
	var targets []*Connection
	if ok {
		switch role {
		case RoleDevice:
			targets = snapshotViewers(room)
		case RoleViewer:
			if room.device != nil {
				targets = []*Connection{room.device}
			}
		}
	}
	h.mu.RUnlock()

	if !ok {
		h.dropUnknownRoom(conn, MessageTypeCandidate, roomID)
		return
	}
	out := &SignalMessage{Type: MessageTypeCandidate, RoomID: roomID, Payload: payload, From: conn.ID, Timestamp: time.Now().Unix()}
	for _, t := range targets {
		t.send(out)
	}
	metrics.SignalsRelayed.WithLabelValues(MessageTypeCandidate).Inc()
}

// handleDisconnect 连接关闭善后：设备离线拆房，观看端离线仅移除
func (h *Hub) handleDisconnect(conn *Connection) {
	roomID, role := conn.where()
	if roomID == "" {
		return
	}
	switch role {
	case RoleDevice:
		h.mu.Lock()
		room, ok := h.rooms[roomID]
		if ok && room.device == conn {
			h.mu.Unlock()
			h.CloseRoom(roomID, "device disconnected")
			return
		}
		h.mu.Unlock()
	case RoleViewer:
		h.mu.Lock()
		if room, ok := h.rooms[roomID]; ok {
			delete(room.viewers, conn.ID)
			if room.device != nil {
				room.device.send(&SignalMessage{Type: MessageTypeViewerLeft, RoomID: roomID, From: conn.ID, Timestamp: time.Now().Unix()})
			}
		}
		h.mu.Unlock()
	}
}

// SweepIdleRooms 回收长时间无活动的房间
func (h *Hub) SweepIdleRooms() {
	h.mu.RLock()
	var stale []string
	now := time.Now()
	for id, room := range h.rooms {
		if now.Sub(room.lastActivity) > h.config.IdleRoomTTL {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		logrus.Warnf("回收无活动房间: %s", id)
		h.CloseRoom(id, "idle timeout")
	}
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.CloseRoom(id, "hub shutdown")
	}
	logrus.Info("信令Hub已关闭")
}

// dropUnknownRoom 未知房间的消息丢弃并记日志，连接不关闭
func (h *Hub) dropUnknownRoom(conn *Connection, msgType, roomID string) {
	metrics.SignalsDropped.Inc()
	logrus.Warnf("丢弃指向未知房间的消息: type=%s room=%s conn=%s", msgType, roomID, conn.ID)
	conn.send(&SignalMessage{Type: MessageTypeError, RoomID: roomID, Payload: mustJSON(map[string]string{"error": "unknown room"}), Timestamp: time.Now().Unix()})
}

// dropMessage 畸形负载丢弃并记日志，连接不关闭
func (h *Hub) dropMessage(conn *Connection, roomID, reason string, err error) {
	metrics.SignalsDropped.Inc()
	logrus.Warnf("丢弃畸形信令消息: room=%s conn=%s %s: %v", roomID, conn.ID, reason, err)
}

func parseOffer(payload json.RawMessage) (*webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(payload, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

func parseAnswer(payload json.RawMessage) (*webrtc.SessionDescription, error) {
	return parseOffer(payload)
}

func snapshotViewers(room *Room) []*Connection {
	out := make([]*Connection, 0, len(room.viewers))
	for _, v := range room.viewers {
		out = append(out, v)
	}
	return out
}

func mustJSON(v interface{}) json.RawMessage {
	buf, _ := json.Marshal(v)
	return buf
}
