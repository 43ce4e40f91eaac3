package judge

import (
	"sync"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/perception"
)

// 中文说明：
// 维度评分器。每个维度是机会字段的确定性函数，输出 [0,1]；
// 外部（学习器）可推送带符号的调整量，生效分 = clamp(基础分+调整, 0, 1)。
// 评分本身无副作用，同一输入 + 同一调整快照必得同一输出。

// Scorer 维度评分器
type Scorer struct {
	mu          sync.RWMutex
	adjustments map[Dimension]float64
}

func NewScorer() *Scorer {
	return &Scorer{adjustments: map[Dimension]float64{}}
}

// SetAdjustments 全量替换调整快照（由学习器在 lesson 后推送）。
func (s *Scorer) SetAdjustments(adj map[Dimension]float64) {
	if s == nil {
		return
	}
	next := make(map[Dimension]float64, len(adj))
	for k, v := range adj {
		next[k] = v
	}
	s.mu.Lock()
	s.adjustments = next
	s.mu.Unlock()
}

// Adjustments 返回当前调整快照的拷贝。
func (s *Scorer) Adjustments() map[Dimension]float64 {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Dimension]float64, len(s.adjustments))
	for k, v := range s.adjustments {
		out[k] = v
	}
	return out
}

// Score 对机会逐维度打分，返回生效分表（已套用调整并收敛到 [0,1]）。
func (s *Scorer) Score(op perception.Opportunity) map[Dimension]float64 {
	op = op.Normalize()
	s.mu.RLock()
	adj := s.adjustments
	scores := make(map[Dimension]float64, len(AllDimensions))
	for _, d := range AllDimensions {
		scores[d] = clamp01(baseScore(d, op) + adj[d])
	}
	s.mu.RUnlock()
	return scores
}

// baseScore 各维度的基础评分规则。载荷缺键时一律取中性分。
func baseScore(d Dimension, op perception.Opportunity) float64 {
	switch d {
	case DimSafety:
		return payloadOrNeutral(op, "safety")
	case DimLiquidity:
		return payloadOrNeutral(op, "liquidity")
	case DimMomentum:
		return scoreMomentum(op)
	case DimVolume:
		v := payloadOrNeutral(op, "volume")
		if op.Signal.Type == perception.SignalVolumeSurge {
			v += 0.15
		}
		return v
	case DimSentiment:
		v := payloadOrNeutral(op, "sentiment")
		if op.Signal.Type == perception.SignalWhaleBuy {
			v += 0.10
		}
		return v
	case DimTiming:
		return scoreTiming(op)
	case DimTechnicals:
		return payloadOrNeutral(op, "pattern")
	case DimUnknown:
		return neutralScore
	default:
		return neutralScore
	}
}

// scoreMomentum 动能分：幅度为主，信号类型与方向微调。
func scoreMomentum(op perception.Opportunity) float64 {
	v := 0.25 + 0.60*op.Magnitude
	switch op.Signal.Type {
	case perception.SignalPriceSpike, perception.SignalVolumeSurge:
		v += 0.10
	}
	if op.Direction == perception.DirectionShort {
		v -= 0.05
	}
	return v
}

// scoreTiming 新鲜度分：4 小时内线性衰减，缺失年龄按中性处理。
func scoreTiming(op perception.Opportunity) float64 {
	age, ok := op.DataValue("age_min")
	if !ok {
		return neutralScore
	}
	if age < 0 {
		age = 0
	}
	return 1 - age/240
}

func payloadOrNeutral(op perception.Opportunity, key string) float64 {
	if v, ok := op.DataValue(key); ok {
		return v
	}
	return neutralScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
