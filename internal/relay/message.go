package relay

import "encoding/json"

// 信令消息类型常量
const (
	// 入站
	MessageTypeJoinDevice = "join-device"
	MessageTypeJoinViewer = "join-viewer"
	MessageTypeOffer      = "offer"
	MessageTypeAnswer     = "answer"
	MessageTypeCandidate  = "candidate"
	MessageTypeEnd        = "end"
	MessageTypePing       = "ping"

	// 出站
	MessageTypePong        = "pong"
	MessageTypeJoined      = "joined"
	MessageTypeStreamEnded = "stream-ended"
	MessageTypeViewerLeft  = "viewer-left"
	MessageTypeLocation    = "location"
	MessageTypeError       = "error"
)

// 连接角色
const (
	RoleDevice = "device"
	RoleViewer = "viewer"
)

// SignalMessage 定义信令消息结构
// Payload 对中继是不透明的（SDP/ICE 只转发不解释），仅做解码校验
type SignalMessage struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	From      string          `json:"from,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}
