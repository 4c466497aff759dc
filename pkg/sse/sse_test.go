package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAlertSubscribers(t *testing.T) {
	hub := NewHub(time.Minute)

	s1 := hub.subscribe("alert-1")
	s2 := hub.subscribe("alert-1")
	other := hub.subscribe("alert-2")
	assert.Equal(t, 2, hub.SubscriberCount("alert-1"))

	hub.Publish("alert-1", Event{Type: "status", AlertID: "alert-1", Data: map[string]string{"status": "streaming"}})

	for _, s := range []*subscriber{s1, s2} {
		select {
		case msg := <-s.ch:
			assert.Contains(t, msg, "streaming")
			assert.Contains(t, msg, "data: ")
		default:
			t.Fatal("订阅者没有收到事件")
		}
	}
	// 其他警报的订阅者不受影响
	assert.Empty(t, other.ch)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(time.Minute)

	s := hub.subscribe("alert-1")
	hub.unsubscribe(s.id)
	assert.Equal(t, 0, hub.SubscriberCount("alert-1"))

	hub.Publish("alert-1", Event{Type: "status", AlertID: "alert-1"})
	assert.Empty(t, s.ch)

	// done 已关闭
	select {
	case <-s.done:
	default:
		t.Fatal("done 通道应已关闭")
	}
}

func TestPublishFillsTimestamp(t *testing.T) {
	hub := NewHub(time.Minute)
	s := hub.subscribe("alert-1")

	hub.Publish("alert-1", Event{Type: "resolved", AlertID: "alert-1"})
	msg := <-s.ch
	require.Contains(t, msg, `"time":`)
	assert.NotContains(t, msg, `"time":0`)
}
