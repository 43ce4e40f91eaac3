package manager

import (
	"strings"
	"sync"
	"time"
)

// CooldownCache 记录 token+action 的最近触发时间。
// 冷却窗口内的重复动作被压制，避免同一信号在相邻轮次反复开仓。
type CooldownCache struct {
	mu   sync.RWMutex
	data map[string]time.Time // key: TOKEN#ACTION
	ttl  time.Duration
}

func NewCooldownCache(ttl time.Duration) *CooldownCache {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &CooldownCache{data: make(map[string]time.Time), ttl: ttl}
}

// Allow 判断该 token+action 是否已过冷却。
func (c *CooldownCache) Allow(token, action string, now time.Time) bool {
	if c == nil {
		return true
	}
	k := cooldownKey(token, action)
	if k == "" {
		return true
	}
	c.mu.RLock()
	last, ok := c.data[k]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	return now.Sub(last) >= c.ttl
}

// Remaining 返回距冷却结束的剩余时长，未在冷却中返回 0。
func (c *CooldownCache) Remaining(token, action string, now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	k := cooldownKey(token, action)
	if k == "" {
		return 0
	}
	c.mu.RLock()
	last, ok := c.data[k]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	if rem := c.ttl - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}

// Mark 记录一次触发。
func (c *CooldownCache) Mark(token, action string, now time.Time) {
	if c == nil {
		return
	}
	k := cooldownKey(token, action)
	if k == "" {
		return
	}
	c.mu.Lock()
	c.data[k] = now
	c.mu.Unlock()
}

// Sweep 清理已过冷却的条目，返回清理数量。
func (c *CooldownCache) Sweep(now time.Time) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for k, last := range c.data {
		if now.Sub(last) >= c.ttl {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len 当前在冷却中的条目数（含待清理项）。
func (c *CooldownCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func cooldownKey(token, action string) string {
	token = strings.ToUpper(strings.TrimSpace(token))
	action = strings.ToUpper(strings.TrimSpace(action))
	if token == "" || action == "" {
		return ""
	}
	return token + "#" + action
}
