package coordinator

import (
	"fmt"
	"time"

	"HibiscusGuard/internal/models"
	"HibiscusGuard/pkg/location"
)

// IncidentMessage 一次事故的通知内容；每个联系人算一次，各渠道复用
type IncidentMessage struct {
	Subject string
	Body    string
}

var triggerLabels = map[models.TriggerKind][2]string{
	models.TriggerManual:   {"manual SOS button", "手动求救按钮"},
	models.TriggerVoice:    {"voice distress keyword", "语音求救关键词"},
	models.TriggerSensor:   {"device sensor", "设备传感器"},
	models.TriggerWearable: {"wearable alarm", "穿戴设备报警"},
}

// composeIncidentMessage 组装事故消息；对单个联系人只算一次，跨渠道不变
func composeIncidentMessage(alert *models.Alert, contactName, streamLink string) IncidentMessage {
	labels, ok := triggerLabels[alert.TriggerKind]
	if !ok {
		labels = [2]string{string(alert.TriggerKind), string(alert.TriggerKind)}
	}
	fix := location.Fix{Lat: alert.Lat, Lng: alert.Lng}

	subject := "[HibiscusGuard] SOS 紧急求助 / Emergency alert"
	body := fmt.Sprintf(
		"%s：您的联系人触发了紧急求助。\n"+
			"%s, your contact has triggered an emergency alert.\n\n"+
			"触发方式 Trigger: %s / %s\n"+
			"时间 Time: %s\n"+
			"位置 Location: %s\n"+
			"实时画面 Live stream: %s\n",
		contactName, contactName,
		labels[1], labels[0],
		alert.CreatedAt.Format(time.RFC3339),
		location.MapLink(fix),
		streamLink,
	)
	return IncidentMessage{Subject: subject, Body: body}
}

// composeResolvedMessage 解除通知，一次性
func composeResolvedMessage(alert *models.Alert) IncidentMessage {
	return IncidentMessage{
		Subject: "[HibiscusGuard] 警报已解除 / Alert resolved",
		Body: fmt.Sprintf(
			"警报已于 %s 解除，响应耗时 %s。\n"+
				"The alert was resolved at %s (response time %s).\n",
			alert.ResolvedAt.Format(time.RFC3339), alert.ResponseTime().Round(time.Second),
			alert.ResolvedAt.Format(time.RFC3339), alert.ResponseTime().Round(time.Second),
		),
	}
}
