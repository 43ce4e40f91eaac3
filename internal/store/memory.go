package store

import (
	"context"
	"sync"
)

// MemoryGateway 进程内后端：重启即失忆，用于联调与测试。
type MemoryGateway struct {
	mu sync.Mutex
	st *State
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{}
}

func (g *MemoryGateway) Save(_ context.Context, st State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := st
	cp.DimensionAdjustments = make(map[string]float64, len(st.DimensionAdjustments))
	for k, v := range st.DimensionAdjustments {
		cp.DimensionAdjustments[k] = v
	}
	cp.ActionReliability = make(map[string]ReliabilityCounters, len(st.ActionReliability))
	for k, v := range st.ActionReliability {
		cp.ActionReliability[k] = v
	}
	g.st = &cp
	return nil
}

func (g *MemoryGateway) Load(_ context.Context) (*State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.st == nil {
		return nil, nil
	}
	cp := *g.st
	cp.DimensionAdjustments = make(map[string]float64, len(g.st.DimensionAdjustments))
	for k, v := range g.st.DimensionAdjustments {
		cp.DimensionAdjustments[k] = v
	}
	cp.ActionReliability = make(map[string]ReliabilityCounters, len(g.st.ActionReliability))
	for k, v := range g.st.ActionReliability {
		cp.ActionReliability[k] = v
	}
	return &cp, nil
}

func (g *MemoryGateway) Close() error { return nil }

// NoopGateway 关闭持久化时的占位实现。
type NoopGateway struct{}

var _ Gateway = NoopGateway{}

func (NoopGateway) Save(context.Context, State) error { return nil }
func (NoopGateway) Load(context.Context) (*State, error) {
	return nil, nil
}
func (NoopGateway) Close() error { return nil }
