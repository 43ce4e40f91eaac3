package judge

import "sync"

// History 固定容量的判断历史：追加后超出容量即淘汰最旧一条。
type History struct {
	mu    sync.RWMutex
	max   int
	items []Judgment
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 50
	}
	return &History{max: max}
}

func (h *History) Append(j Judgment) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.items = append(h.items, j)
	if len(h.items) > h.max {
		h.items = h.items[len(h.items)-h.max:]
	}
	h.mu.Unlock()
}

// Snapshot 返回从旧到新的拷贝。
func (h *History) Snapshot() []Judgment {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Judgment, len(h.items))
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

// Cap 返回容量（淘汰策略的契约部分）。
func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return h.max
}
