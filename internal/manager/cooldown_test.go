package manager

import (
	"testing"
	"time"
)

func TestCooldownCache_AllowMarkCycle(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c := NewCooldownCache(3 * time.Minute)

	if !c.Allow("pepe", "BUY", now) {
		t.Fatal("fresh key should be allowed")
	}
	c.Mark("pepe", "BUY", now)

	if c.Allow("PEPE", "buy", now.Add(time.Minute)) {
		t.Fatal("same token+action within ttl must be suppressed (case-insensitive)")
	}
	// 不同动作互不影响
	if !c.Allow("PEPE", "SELL", now.Add(time.Minute)) {
		t.Fatal("different action should not share the cooldown")
	}
	// 不同 token 互不影响
	if !c.Allow("DOGE", "BUY", now.Add(time.Minute)) {
		t.Fatal("different token should not share the cooldown")
	}

	if !c.Allow("pepe", "BUY", now.Add(3*time.Minute)) {
		t.Fatal("cooldown should expire at ttl")
	}
}

func TestCooldownCache_Sweep(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c := NewCooldownCache(time.Minute)
	c.Mark("pepe", "BUY", now)
	c.Mark("doge", "SELL", now.Add(50*time.Second))

	if got := c.Sweep(now.Add(time.Minute)); got != 1 {
		t.Fatalf("expected 1 swept entry, got %d", got)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", c.Len())
	}
}

func TestCooldownCache_Remaining(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c := NewCooldownCache(3 * time.Minute)

	if c.Remaining("pepe", "BUY", now) != 0 {
		t.Fatal("unmarked key has no remaining cooldown")
	}
	c.Mark("pepe", "BUY", now)
	if got := c.Remaining("pepe", "BUY", now.Add(time.Minute)); got != 2*time.Minute {
		t.Fatalf("expected 2m remaining, got %s", got)
	}
	if got := c.Remaining("pepe", "BUY", now.Add(4*time.Minute)); got != 0 {
		t.Fatalf("expired entry must report 0, got %s", got)
	}
}

func TestCooldownCache_NilSafety(t *testing.T) {
	var c *CooldownCache
	if !c.Allow("pepe", "BUY", time.Now()) {
		t.Fatal("nil cache should always allow")
	}
	c.Mark("pepe", "BUY", time.Now())
	if c.Sweep(time.Now()) != 0 || c.Len() != 0 {
		t.Fatal("nil cache is inert")
	}
	if c.Remaining("pepe", "BUY", time.Now()) != 0 {
		t.Fatal("nil cache has no cooldowns")
	}
}
