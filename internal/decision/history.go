package decision

import "sync"

// History 固定容量的决策历史，淘汰最旧。
type History struct {
	mu    sync.RWMutex
	max   int
	items []Decision
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 50
	}
	return &History{max: max}
}

func (h *History) Append(d Decision) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.items = append(h.items, d)
	if len(h.items) > h.max {
		h.items = h.items[len(h.items)-h.max:]
	}
	h.mu.Unlock()
}

// Snapshot 返回从旧到新的拷贝。
func (h *History) Snapshot() []Decision {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Decision, len(h.items))
	copy(out, h.items)
	return out
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return h.max
}
