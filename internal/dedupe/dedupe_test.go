package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	"HibiscusGuard/pkg/cache"

	"github.com/stretchr/testify/assert"
)

func newTestDedupe(ttl time.Duration) *Deduplicator {
	c := cache.NewGoCache(cache.LocalConfig{
		DefaultExpiration: ttl,
		CleanupInterval:   time.Minute,
	})
	return New(c, ttl)
}

func TestShouldSendThenMark(t *testing.T) {
	d := newTestDedupe(time.Minute)
	ctx := context.Background()
	key := Key{AlertID: "alert-1", ContactID: "contact-1", Channel: "sms"}

	assert.True(t, d.ShouldSend(ctx, key))
	d.MarkSent(ctx, key, 0)
	assert.False(t, d.ShouldSend(ctx, key))

	// 其他键不受影响
	assert.True(t, d.ShouldSend(ctx, Key{AlertID: "alert-1", ContactID: "contact-2", Channel: "sms"}))
	assert.True(t, d.ShouldSend(ctx, Key{AlertID: "alert-1", ContactID: "contact-1", Channel: "mail"}))
}

func TestEntryExpires(t *testing.T) {
	d := newTestDedupe(time.Minute)
	ctx := context.Background()
	key := Key{AlertID: "alert-1", ContactID: "contact-1", Channel: "sms"}

	d.MarkSent(ctx, key, 50*time.Millisecond)
	assert.False(t, d.ShouldSend(ctx, key))

	time.Sleep(100 * time.Millisecond) // 等过期
	assert.True(t, d.ShouldSend(ctx, key))
}

func TestClaimIsAtomic(t *testing.T) {
	d := newTestDedupe(time.Minute)
	ctx := context.Background()
	key := Key{AlertID: "alert-1", ContactID: "contact-1", Channel: "whatsapp"}

	// 并发抢占同一键，只有一个赢家
	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Claim(ctx, key, 0) {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestKeyString(t *testing.T) {
	key := Key{AlertID: "a1", ContactID: "c1", Channel: "sms"}
	assert.Equal(t, "notify:a1:c1:sms", key.String())
}

func TestSweepAndSize(t *testing.T) {
	d := newTestDedupe(time.Minute)
	ctx := context.Background()

	d.MarkSent(ctx, Key{AlertID: "a1", ContactID: "c1", Channel: "sms"}, 30*time.Millisecond)
	d.MarkSent(ctx, Key{AlertID: "a1", ContactID: "c2", Channel: "sms"}, time.Minute)
	assert.Equal(t, 2, d.Size())

	time.Sleep(60 * time.Millisecond)
	d.Sweep(ctx)
	assert.Equal(t, 1, d.Size())
}
