package learn

import (
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
)

// pendingAction 等待结果回报的动作记录。
type pendingAction struct {
	Judgment    judge.Judgment
	Decision    decision.Decision
	RecordedAt  time.Time
	Synthesized bool // 结果先于记录到达时补造的最小记录
}

// synthesizePending 为未记录的结果补造最小记录：
// 无判断分表（无法归因维度），动作未知（不更新可靠性）。
func synthesizePending(resultID string, now time.Time) pendingAction {
	return pendingAction{
		Decision:    decision.Decision{ID: resultID},
		RecordedAt:  now,
		Synthesized: true,
	}
}
