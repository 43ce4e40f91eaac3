package learn

import (
	"fmt"
	"sort"
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
)

// 中文说明：
// 结果分类与课程提取。课程只在结果"显著"时产生：
// |pnl| 超过显著性阈值，或执行端上报失败。

// OutcomeType 结果分类，封闭枚举
type OutcomeType string

const (
	OutcomeProfitable OutcomeType = "profitable"
	OutcomeBreakeven  OutcomeType = "breakeven"
	OutcomeLoss       OutcomeType = "loss"
	OutcomeMissed     OutcomeType = "missed_opportunity"
	OutcomeAvoided    OutcomeType = "avoided_loss"
)

// Result 执行协作方回报
type Result struct {
	ID        string  `json:"id"` // 对应 Decision.ID
	Success   bool    `json:"success"`
	PnL       float64 `json:"pnl"`
	Simulated bool    `json:"simulated"`
}

// Outcome 一次结果的归类
type Outcome struct {
	DecisionID string      `json:"decision_id"`
	Type       OutcomeType `json:"type"`
	PnL        float64     `json:"pnl"`
	Executed   bool        `json:"executed"` // 是否对应已执行动作（BUY/SELL）
	At         time.Time   `json:"at"`
}

// ContributorKind 误导方向
type ContributorKind string

const (
	// FalsePositive 高分在亏损前出现：看起来好，实际不好
	FalsePositive ContributorKind = "false_positive"
	// FalseNegative 低分在盈利前出现：看起来差，实际不差
	FalseNegative ContributorKind = "false_negative"
)

// 贡献维度判定阈值
const (
	confidentThreshold = 0.70
	cautiousThreshold  = 0.30
	maxContributors    = 5
)

// Contributor 误导性维度
type Contributor struct {
	Dimension judge.Dimension `json:"dimension"`
	Score     float64         `json:"score"`
	Kind      ContributorKind `json:"kind"`
}

// Lesson 从 (Judgment, Decision, Outcome) 提炼的课程
type Lesson struct {
	ID             string        `json:"id"`
	DecisionID     string        `json:"decision_id"`
	Outcome        OutcomeType   `json:"outcome"`
	PnL            float64       `json:"pnl"`
	Contributors   []Contributor `json:"contributors,omitempty"`
	Recommendation string        `json:"recommendation"`
	At             time.Time     `json:"at"`
}

// Clone 深拷贝（事件载荷用）。
func (l Lesson) Clone() Lesson {
	out := l
	out.Contributors = append([]Contributor(nil), l.Contributors...)
	return out
}

// findContributors 在判断分表中找误导性维度，按偏离程度取前 5。
// 亏损向：分数越高越可疑；盈利向（含错失）：分数越低越可疑。
func findContributors(scores map[judge.Dimension]float64, outcome OutcomeType) []Contributor {
	if len(scores) == 0 {
		return nil
	}
	var out []Contributor
	switch outcome {
	case OutcomeLoss:
		for d, s := range scores {
			if s > confidentThreshold {
				out = append(out, Contributor{Dimension: d, Score: s, Kind: FalsePositive})
			}
		}
	case OutcomeProfitable, OutcomeMissed:
		for d, s := range scores {
			if s < cautiousThreshold {
				out = append(out, Contributor{Dimension: d, Score: s, Kind: FalseNegative})
			}
		}
	default:
		return nil
	}
	sort.Slice(out, func(a, b int) bool {
		if extremity(out[a]) != extremity(out[b]) {
			return extremity(out[a]) > extremity(out[b])
		}
		return out[a].Dimension < out[b].Dimension
	})
	if len(out) > maxContributors {
		out = out[:maxContributors]
	}
	return out
}

// extremity 偏离判定阈值的程度
func extremity(c Contributor) float64 {
	if c.Kind == FalsePositive {
		return c.Score - confidentThreshold
	}
	return cautiousThreshold - c.Score
}

// buildRecommendation 简短的中文建议文本。
func buildRecommendation(outcome OutcomeType, execFailed bool, contributors []Contributor) string {
	if execFailed {
		return "执行失败，请检查执行通道后再恢复该动作"
	}
	if len(contributors) == 0 {
		switch outcome {
		case OutcomeLoss:
			return "亏损但无明显误导维度，维持当前权重"
		case OutcomeProfitable:
			return "盈利符合评分预期，维持当前权重"
		case OutcomeMissed:
			return "错失机会但评分无明显低估，观察后续样本"
		default:
			return "结果无需调整"
		}
	}
	top := contributors[0]
	switch top.Kind {
	case FalsePositive:
		return fmt.Sprintf("维度 %s 高分(%.2f)误导了决策，已下调其调整量", top.Dimension, top.Score)
	default:
		return fmt.Sprintf("维度 %s 低分(%.2f)低估了机会，已上调其调整量", top.Dimension, top.Score)
	}
}
