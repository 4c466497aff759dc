package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type SMSConfig struct {
	Endpoint  string
	AccessKey string
	SignName  string
}

// SMSClient 便于替换/注入的发送接口（适配真实短信网关 SDK）
type SMSClient interface {
	Send(ctx context.Context, phone, sign, content string) error
}

// SMSSender 短信渠道
type SMSSender struct {
	cfg SMSConfig
	cli SMSClient
}

func NewSMSSender(cfg SMSConfig, cli SMSClient) *SMSSender {
	return &SMSSender{cfg: cfg, cli: cli}
}

func (s *SMSSender) Channel() string { return ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, to, subject, body string) error {
	if s.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	// 短信没有主题，拼在正文前
	content := body
	if subject != "" {
		content = subject + " " + body
	}
	return s.cli.Send(ctx, to, s.cfg.SignName, content)
}

// HTTPSMSClient 走 HTTP 网关的默认实现（阿里云风格的 JSON 接口）
type HTTPSMSClient struct {
	cfg    SMSConfig
	client *http.Client
}

func NewHTTPSMSClient(cfg SMSConfig) *HTTPSMSClient {
	return &HTTPSMSClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPSMSClient) Send(ctx context.Context, phone, sign, content string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"sign":    sign,
		"content": content,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}
