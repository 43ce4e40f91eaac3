package learn

import (
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// 中文说明：
// 动作可靠性计数：每动作 (successes, failures)，Beta(1,1) 先验。
// 计数只增不减且恒 ≥1，唯一写入方是 Evaluator；
// 选择器消费的是按快照导出的只读视图。

// ReliabilityView 不可变快照，实现 decision.ReliabilitySource。
type ReliabilityView map[decision.Action]store.ReliabilityCounters

// Score 返回 Beta 均值 successes/(successes+failures)。
func (v ReliabilityView) Score(a decision.Action) (float64, bool) {
	c, ok := v[a]
	if !ok {
		return 0, false
	}
	total := c.Successes + c.Failures
	if total <= 0 {
		return 0, false
	}
	return float64(c.Successes) / float64(total), true
}

// ensureCounters 取出某动作计数，首次访问按 Beta(1,1) 初始化。
// 调用方须持有 Evaluator 锁。
func ensureCounters(m map[decision.Action]store.ReliabilityCounters, a decision.Action) store.ReliabilityCounters {
	c, ok := m[a]
	if !ok || c.Successes < 1 || c.Failures < 1 {
		if c.Successes < 1 {
			c.Successes = 1
		}
		if c.Failures < 1 {
			c.Failures = 1
		}
		m[a] = c
	}
	return c
}
