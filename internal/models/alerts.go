package models

import "time"

// TriggerKind 触发方式，封闭枚举
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerVoice    TriggerKind = "voice"
	TriggerSensor   TriggerKind = "device-sensor"
	TriggerWearable TriggerKind = "wearable"
)

// Valid 是否为已知触发方式
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerManual, TriggerVoice, TriggerSensor, TriggerWearable:
		return true
	}
	return false
}

// Location 位置坐标，嵌入在 Alert 中
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// SOS Alert（求助警报），一次事故对应一条记录，只归档不删除
type Alert struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	OwnerID      string      `gorm:"size:36;index" json:"ownerId"`
	TriggerKind  TriggerKind `gorm:"size:20" json:"triggerKind"`
	Status       string      `gorm:"size:20;index" json:"status"` // triggered / notifying / streaming / resolved / abandoned
	Lat          float64     `json:"lat"`
	Lng          float64     `json:"lng"`
	Address      string      `gorm:"size:200" json:"address,omitempty"`
	AudioRef     string      `gorm:"size:500" json:"audioRef,omitempty"`
	VideoRef     string      `gorm:"size:500" json:"videoRef,omitempty"`
	RoomID       string      `gorm:"size:36" json:"roomId,omitempty"`
	Resolved     bool        `gorm:"index" json:"resolved"`
	ResolvedBy   string      `gorm:"size:36" json:"resolvedBy,omitempty"`
	ResolvedAt   *time.Time  `json:"resolvedAt,omitempty"`
	NeedFollowUp bool        `json:"needFollowUp"` // Abandoned 时置位，等待人工跟进
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// 警报状态
const (
	AlertStatusTriggered = "triggered"
	AlertStatusNotifying = "notifying"
	AlertStatusStreaming = "streaming"
	AlertStatusResolved  = "resolved"
	AlertStatusAbandoned = "abandoned"
)

// ResponseTime 响应时长（resolvedAt - createdAt）；未解决返回 0
func (a *Alert) ResponseTime() time.Duration {
	if a.ResolvedAt == nil {
		return 0
	}
	return a.ResolvedAt.Sub(a.CreatedAt)
}

// 警报上执行的操作（解决、回拨、上传证据等），审计用
type AlertAction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AlertID    string    `gorm:"size:36;index" json:"alertId"`
	ActorID    string    `gorm:"size:36" json:"actorId"`
	Action     string    `gorm:"size:40" json:"action"` // "resolve", "evidence_upload", "location_refresh"
	Detail     string    `gorm:"size:500" json:"detail,omitempty"`
	ActionTime time.Time `json:"actionTime"`
	CreatedAt  time.Time `json:"createdAt"`
}
