package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSenderPostsCloudAPIPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		buf, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(buf, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL, Token: "token-1"})
	assert.Equal(t, ChannelWhatsApp, s.Channel())

	err := s.Send(context.Background(), "+8613800000001", "SOS Alert", "body text")
	require.NoError(t, err)

	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "+8613800000001", gotBody["to"])
}

func TestWhatsAppSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL, Token: "t"})
	err := s.Send(context.Background(), "+86138", "subj", "body")
	assert.Error(t, err)
}

func TestHTTPSMSClientSendsSignedRequest(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(buf, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := SMSConfig{Endpoint: srv.URL, AccessKey: "ak-1", SignName: "HibiscusGuard"}
	sender := NewSMSSender(cfg, NewHTTPSMSClient(cfg))
	assert.Equal(t, ChannelSMS, sender.Channel())

	err := sender.Send(context.Background(), "13800000001", "SOS Alert", "body text")
	require.NoError(t, err)

	assert.Equal(t, "Bearer ak-1", gotAuth)
	assert.Equal(t, "13800000001", gotBody["phone"])
	assert.Equal(t, "HibiscusGuard", gotBody["sign"])
	// 短信没有主题，拼接进正文
	assert.Equal(t, "SOS Alert body text", gotBody["content"])
}

func TestSMSSenderWithoutClient(t *testing.T) {
	sender := NewSMSSender(SMSConfig{}, nil)
	assert.Error(t, sender.Send(context.Background(), "138", "s", "b"))
}

func TestMailSenderRequiresHost(t *testing.T) {
	s := NewMailSender(MailConfig{})
	assert.Error(t, s.Send(context.Background(), "a@b.c", "s", "b"))
}
