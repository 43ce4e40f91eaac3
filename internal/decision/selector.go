package decision

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/pkg/text"
)

// 中文说明：
// 动作选择器：把判断映射为可执行决策。
// 流程固定：置信闸 → 裁决映射 → 可靠性闸 → 仓位计算，任一闸未过即 HOLD，
// 理由只报告第一道未过的闸。可靠性估计由学习器独占维护，这里只读。

// Action 动作，封闭枚举
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// 可靠性闸阈值：Beta 均值低于此值的动作一律观望
const reliabilityGate = 0.40

// 仓位小数精度
const sizePrecision = 4

// 理由串长度上限
const maxReasonLen = 220

// Decision 一次决策，创建后不可变。
type Decision struct {
	ID         string    `json:"id"`
	JudgmentID string    `json:"judgment_id"`
	Token      string    `json:"token"`
	VenueID    string    `json:"venue_id"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Size       float64   `json:"size"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// ReliabilitySource 动作可靠性只读视图：Beta 均值 successes/(successes+failures)。
// 返回 false 表示该动作暂无记录。
type ReliabilitySource interface {
	Score(action Action) (float64, bool)
}

// Selector 动作选择器
type Selector struct {
	minSize       float64
	maxSize       float64
	maxConfidence float64 // 调用方上限；<=0 表示未设置（仅受全局上限约束）
	reliability   ReliabilitySource
	history       *History
	bus           *events.Bus
}

// SelectorOptions 构造参数
type SelectorOptions struct {
	MinSize       float64
	MaxSize       float64
	MaxConfidence float64
	Reliability   ReliabilitySource // 可为 nil：可靠性闸关闭
	HistorySize   int
	Bus           *events.Bus
}

func NewSelector(opts SelectorOptions) *Selector {
	if opts.MinSize <= 0 {
		opts.MinSize = 0.01
	}
	if opts.MaxSize <= opts.MinSize {
		opts.MaxSize = opts.MinSize * 10
	}
	return &Selector{
		minSize:       opts.MinSize,
		maxSize:       opts.MaxSize,
		maxConfidence: opts.MaxConfidence,
		reliability:   opts.Reliability,
		history:       NewHistory(opts.HistorySize),
		bus:           opts.Bus,
	}
}

// SetReliability 替换可靠性来源（学习器在 lesson 后推送新视图）。
func (s *Selector) SetReliability(src ReliabilitySource) {
	if s == nil {
		return
	}
	s.reliability = src
}

// Decide 把判断转为决策。minConfidence 为本次调用的置信下限
// （通常取学习器的自适应阈值）。永不失败，终态恒为一个 Decision。
func (s *Selector) Decide(j judge.Judgment, minConfidence float64) Decision {
	eff := effectiveConfidence(j.Confidence, s.maxConfidence)

	d := Decision{
		ID:         uuid.NewString(),
		JudgmentID: j.ID,
		Token:      j.Token,
		VenueID:    j.VenueID,
		Action:     ActionHold,
		Confidence: eff,
		At:         time.Now(),
	}

	switch {
	case eff < minConfidence:
		d.Reason = fmt.Sprintf("置信不足: %.2f < 下限 %.2f", eff, minConfidence)
	default:
		action := mapAction(j.Verdict)
		if action == ActionHold {
			d.Reason = fmt.Sprintf("裁决中性(Q=%d)，观望", j.QScore)
			break
		}
		if mean, ok := s.reliabilityScore(action); ok && mean < reliabilityGate {
			d.Reason = fmt.Sprintf("动作 %s 可靠性不足: %.2f < %.2f", action, mean, reliabilityGate)
			break
		}
		d.Action = action
		d.Size = s.positionSize(eff, j.QScore)
		d.Reason = buildActionReason(j, eff)
	}

	d.Reason = text.Truncate(d.Reason, maxReasonLen)
	s.history.Append(d)
	s.bus.Emit(events.Event{Type: events.TypeDecision, Payload: d})
	return d
}

// History 返回决策历史快照。
func (s *Selector) History() []Decision {
	return s.history.Snapshot()
}

// effectiveConfidence = min(判断置信, 调用方上限, 全局上限)。
func effectiveConfidence(c, callerMax float64) float64 {
	if callerMax > 0 && c > callerMax {
		c = callerMax
	}
	if c > judge.MaxConfidence {
		c = judge.MaxConfidence
	}
	if c < 0 {
		c = 0
	}
	return c
}

// mapAction 裁决映射：买向两档 → BUY，卖向两档 → SELL，中性 → HOLD。
func mapAction(v judge.Verdict) Action {
	switch v {
	case judge.VerdictStrongBuy, judge.VerdictBuy:
		return ActionBuy
	case judge.VerdictSell, judge.VerdictStrongSell:
		return ActionSell
	default:
		return ActionHold
	}
}

func (s *Selector) reliabilityScore(action Action) (float64, bool) {
	if s.reliability == nil {
		return 0, false
	}
	return s.reliability.Score(action)
}

// positionSize 仓位 = 下限 + 区间 ×（生效置信/上限）×（Q/100），按固定精度取整。
func (s *Selector) positionSize(eff float64, q int) float64 {
	size := s.minSize + (s.maxSize-s.minSize)*(eff/judge.MaxConfidence)*(float64(q)/100)
	return roundTo(size, sizePrecision)
}

// buildActionReason BUY/SELL 理由：Q 分、置信与非残差维度 Top3。
func buildActionReason(j judge.Judgment, eff float64) string {
	type dimScore struct {
		dim   judge.Dimension
		score float64
	}
	tops := make([]dimScore, 0, len(j.Scores))
	for d, v := range j.Scores {
		if d == judge.DimUnknown {
			continue
		}
		tops = append(tops, dimScore{d, v})
	}
	sort.Slice(tops, func(a, b int) bool {
		if tops[a].score != tops[b].score {
			return tops[a].score > tops[b].score
		}
		return tops[a].dim < tops[b].dim
	})
	if len(tops) > 3 {
		tops = tops[:3]
	}
	parts := make([]string, 0, 3)
	for _, t := range tops {
		parts = append(parts, fmt.Sprintf("%s=%.2f", t.dim, t.score))
	}
	return fmt.Sprintf("Q=%d 置信=%.2f Top3: %s", j.QScore, eff, strings.Join(parts, ", "))
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
