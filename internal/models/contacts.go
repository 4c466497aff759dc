package models

import "time"

// EmergencyContact 紧急联系人；通知扇出的对象
type EmergencyContact struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string    `gorm:"size:36;index" json:"ownerId"`
	Name      string    `gorm:"size:100" json:"name"`
	Phone     string    `gorm:"size:30" json:"phone"`
	WhatsApp  string    `gorm:"size:30" json:"whatsapp,omitempty"`
	Email     string    `gorm:"size:120" json:"email,omitempty"`
	Active    bool      `gorm:"index" json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AddressFor 返回某渠道的投递地址，空串表示该联系人未配置此渠道
func (c *EmergencyContact) AddressFor(channel string) string {
	switch channel {
	case "sms":
		return c.Phone
	case "whatsapp":
		if c.WhatsApp != "" {
			return c.WhatsApp
		}
		return c.Phone
	case "mail":
		return c.Email
	}
	return ""
}

// NotifyRecord 通知发送留痕（去重账本是内存态，这里是事后审计）
type NotifyRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AlertID   string    `gorm:"size:36;index" json:"alertId"`
	ContactID string    `gorm:"size:36" json:"contactId"`
	Channel   string    `gorm:"size:20" json:"channel"`
	Success   bool      `json:"success"`
	Error     string    `gorm:"size:300" json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
	CreatedAt time.Time `json:"createdAt"`
}
