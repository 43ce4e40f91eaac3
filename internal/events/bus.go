package events

import (
	"sync"
	"time"
)

// 中文说明：
// 进程内事件总线，仅用于可观测性：judgment / decision / lesson。
// 事件载荷由发布方提前拷贝为不可变快照，订阅方不得回查可变状态。
// 无订阅方时发布为空操作，正确性不依赖任何消费者。

// Type 事件类型
type Type string

const (
	TypeJudgment Type = "judgment"
	TypeDecision Type = "decision"
	TypeLesson   Type = "lesson"
)

// Event 一次事件。Payload 为发布方克隆后的完整快照。
type Event struct {
	Type    Type
	At      time.Time
	Payload any
}

// Handler 事件回调。在发布方 goroutine 内同步执行，须保持轻量。
type Handler func(Event)

// Bus 回调注册式事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[Type][]Handler{}}
}

// Subscribe 注册某类事件的回调。
func (b *Bus) Subscribe(t Type, h Handler) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], h)
	b.mu.Unlock()
}

// Emit 发布事件；nil 总线与无订阅方均为空操作。
func (b *Bus) Emit(evt Event) {
	if b == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	hs := b.handlers[evt.Type]
	b.mu.RUnlock()
	for _, h := range hs {
		h(evt)
	}
}
