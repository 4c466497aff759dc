package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个信令WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	RoomID   string
	Role     string // device / viewer，入房后确定
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	mu       sync.RWMutex
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 在生产环境中应该检查Origin
			return true
		},
	}
}

// HandleWebSocket 处理WebSocket连接升级并启动读写协程
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}

	connection := &Connection{
		ID:       generateConnectionID(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
	}

	go connection.writePump()
	go connection.readPump()
}

// generateConnectionID 生成唯一的连接ID
func generateConnectionID() string {
	return fmt.Sprintf("conn_%d", time.Now().UnixNano())
}

// attach 入房时记录归属；持Hub锁调用
func (c *Connection) attach(roomID, role string) {
	c.mu.Lock()
	c.RoomID = roomID
	c.Role = role
	c.mu.Unlock()
}

// detach 与房间解绑，不关闭底层连接
func (c *Connection) detach() {
	c.mu.Lock()
	c.RoomID = ""
	c.Role = ""
	c.mu.Unlock()
}

// where 当前归属（房间与角色）；detach 可能来自协调器协程，读必须持锁
func (c *Connection) where() (roomID, role string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RoomID, c.Role
}

// send 序列化后投入发送缓冲；缓冲满按丢弃处理
func (c *Connection) send(msg *SignalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("信令消息序列化失败: %v", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		logrus.Warnf("连接 %s 发送缓冲区已满，消息被丢弃", c.ID)
	}
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.handleDisconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的信令消息
func (c *Connection) handleMessage(message []byte) {
	var msg SignalMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Hub.dropMessage(c, "", "消息解析失败", err)
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.handlePing()
	case MessageTypeJoinDevice:
		c.Hub.joinAsDevice(c, msg.RoomID, msg.Payload)
	case MessageTypeJoinViewer:
		c.Hub.joinAsViewer(c, msg.RoomID)
	case MessageTypeOffer:
		c.Hub.relayOffer(c, msg.RoomID, msg.Payload)
	case MessageTypeAnswer:
		c.Hub.relayAnswer(c, msg.RoomID, msg.Payload)
	case MessageTypeCandidate:
		c.Hub.relayCandidate(c, msg.RoomID, msg.Payload)
	case MessageTypeEnd:
		// 设备主动收播等价于断开
		if roomID, role := c.where(); role == RoleDevice {
			c.Hub.CloseRoom(roomID, "ended by device")
		}
	default:
		logrus.Warnf("未知的信令消息类型: %s", msg.Type)
	}
}

// handlePing 处理ping消息
func (c *Connection) handlePing() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
	c.send(&SignalMessage{Type: MessageTypePong, Timestamp: time.Now().Unix()})
}
