package matcher

import (
	"sync"
	"time"
)

// Debouncer 按监听会话维度的全局防抖：窗口内的重复命中只丢弃不升级
type Debouncer struct {
	mu     sync.Mutex
	last   map[string]time.Time // sessionID -> 上次放行时间
	window time.Duration
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Debouncer{last: make(map[string]time.Time), window: window}
}

// Allow 判断该会话此刻的命中是否放行；放行即记账
func (d *Debouncer) Allow(sessionID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.last[sessionID]; ok && now.Sub(ts) < d.window {
		return false
	}
	d.last[sessionID] = now
	return true
}

// Sweep 清掉早已过窗的会话记录，防止常驻增长
func (d *Debouncer) Sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ts := range d.last {
		if now.Sub(ts) > d.window {
			delete(d.last, id)
		}
	}
}
