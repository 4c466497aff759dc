package notification

import "context"

// 通知渠道名，同时作为去重键的一部分
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelMail     = "mail"
)

// Sender 统一的渠道发送接口；核心只关心成功与否，不关心各家协议
type Sender interface {
	Channel() string
	Send(ctx context.Context, to, subject, body string) error
}
