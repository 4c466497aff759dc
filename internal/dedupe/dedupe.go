package dedupe

import (
	"context"
	"strings"
	"sync"
	"time"

	"HibiscusGuard/pkg/cache"
)

// Key 去重键：(警报或触发指纹, 联系人, 渠道)
type Key struct {
	AlertID   string // 警报ID，未建警报时用触发指纹
	ContactID string
	Channel   string
}

func (k Key) String() string {
	return strings.Join([]string{"notify", k.AlertID, k.ContactID, k.Channel}, ":")
}

// Deduplicator 通知去重账本
// 账本活着的键一律压制重发；互斥锁保证 check-then-mark 在并发下不交错
type Deduplicator struct {
	mu    sync.Mutex
	cache cache.Cache
	ttl   time.Duration
}

func New(c cache.Cache, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Deduplicator{cache: c, ttl: ttl}
}

// ShouldSend 存在未过期条目时返回 false 且不改状态
func (d *Deduplicator) ShouldSend(ctx context.Context, key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.cache.Exists(ctx, key.String())
}

// MarkSent 记账；ttl<=0 时用默认窗口
func (d *Deduplicator) MarkSent(ctx context.Context, key Key, ttl time.Duration) {
	if ttl <= 0 {
		ttl = d.ttl
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.cache.Set(ctx, key.String(), time.Now().Unix(), ttl)
}

// Claim 原子版的 ShouldSend+MarkSent，调用方决定用哪种风格
func (d *Deduplicator) Claim(ctx context.Context, key Key, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = d.ttl
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ok, err := d.cache.Add(ctx, key.String(), time.Now().Unix(), ttl)
	return err == nil && ok
}

// Sweep 主动清理过期条目，协调器按固定间隔调用
func (d *Deduplicator) Sweep(ctx context.Context) {
	d.cache.SweepExpired(ctx)
}

// Size 账本当前条目数（监控用）
func (d *Deduplicator) Size() int {
	return d.cache.ItemCount()
}
