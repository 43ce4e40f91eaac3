package judge

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/perception"
)

// 中文说明：
// 判断引擎：加权聚合各维度分 → Q 分（0~100）与五档裁决。
// 硬性规则先于分档判定：安全分触底直接给最差裁决，流动性触底强制中性。
// 置信度独立于 Q 分，由分数离散度推导，且永不超过 MaxConfidence。

// MaxConfidence 全局置信度上限（黄金分割，永不全信）
const MaxConfidence = 0.618

// 置信度下限
const confidenceFloor = 0.10

// 硬性门槛
const (
	safetyHardFloor    = 0.25
	liquidityHardFloor = 0.35
)

// Verdict 裁决，按强度降序排列的封闭枚举
type Verdict string

const (
	VerdictStrongBuy  Verdict = "strong_buy"
	VerdictBuy        Verdict = "buy"
	VerdictNeutral    Verdict = "neutral"
	VerdictSell       Verdict = "sell"
	VerdictStrongSell Verdict = "strong_sell"
)

// Q 分档（降序阈值，五段覆盖 0~100）
var verdictBands = []struct {
	min     int
	verdict Verdict
}{
	{75, VerdictStrongBuy},
	{60, VerdictBuy},
	{40, VerdictNeutral},
	{25, VerdictSell},
	{0, VerdictStrongSell},
}

// 硬性规则名，记录在 Judgment.OverrideRule 供追溯
const (
	OverrideSafety    = "safety_floor"
	OverrideLiquidity = "liquidity_floor"
)

// Judgment 一次判断的完整快照，创建后不可变。
type Judgment struct {
	ID            string                `json:"id"`
	OpportunityID string                `json:"opportunity_id"`
	Token         string                `json:"token"`
	VenueID       string                `json:"venue_id"`
	Direction     perception.Direction  `json:"direction"`
	At            time.Time             `json:"at"`
	Scores        map[Dimension]float64 `json:"scores"`
	QScore        int                   `json:"q_score"`
	Verdict       Verdict               `json:"verdict"`
	Confidence    float64               `json:"confidence"`
	OverrideRule  string                `json:"override_rule,omitempty"`
}

// Clone 深拷贝（事件载荷用）。
func (j Judgment) Clone() Judgment {
	out := j
	out.Scores = make(map[Dimension]float64, len(j.Scores))
	for k, v := range j.Scores {
		out.Scores[k] = v
	}
	return out
}

// Engine 判断引擎
type Engine struct {
	scorer  *Scorer
	history *History
	bus     *events.Bus
}

func NewEngine(scorer *Scorer, historySize int, bus *events.Bus) *Engine {
	return &Engine{
		scorer:  scorer,
		history: NewHistory(historySize),
		bus:     bus,
	}
}

// Judge 对机会做一次判断。永不失败：缺失字段按中性处理。
func (e *Engine) Judge(op perception.Opportunity) Judgment {
	op = op.Normalize()
	scores := e.scorer.Score(op)

	q := weightedQ(scores)
	verdict, rule := applyOverrides(scores)
	if rule == "" {
		verdict = mapVerdict(q)
	}

	j := Judgment{
		ID:            uuid.NewString(),
		OpportunityID: op.ID,
		Token:         op.Token,
		VenueID:       op.VenueID,
		Direction:     op.Direction,
		At:            time.Now(),
		Scores:        scores,
		QScore:        q,
		Verdict:       verdict,
		Confidence:    confidence(scores),
		OverrideRule:  rule,
	}
	e.history.Append(j)
	e.bus.Emit(events.Event{Type: events.TypeJudgment, Payload: j.Clone()})
	return j
}

// History 返回判断历史快照（仅观测用，评分不回读历史）。
func (e *Engine) History() []Judgment {
	return e.history.Snapshot()
}

// weightedQ 加权均值映射到 0~100 并四舍五入。
func weightedQ(scores map[Dimension]float64) int {
	var num, den float64
	for d, s := range scores {
		w := Weight(d)
		num += s * w
		den += w
	}
	if den <= 0 {
		return 0
	}
	q := int(math.Round(100 * num / den))
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return q
}

// applyOverrides 按固定优先级检查硬性规则：安全最先，其次流动性。
func applyOverrides(scores map[Dimension]float64) (Verdict, string) {
	if scores[DimSafety] < safetyHardFloor {
		return VerdictStrongSell, OverrideSafety
	}
	if scores[DimLiquidity] < liquidityHardFloor {
		return VerdictNeutral, OverrideLiquidity
	}
	return "", ""
}

func mapVerdict(q int) Verdict {
	for _, band := range verdictBands {
		if q >= band.min {
			return band.verdict
		}
	}
	return VerdictStrongSell
}

// confidence 分数越集中置信越高：clamp(1-stddev, floor, MaxConfidence)。
func confidence(scores map[Dimension]float64) float64 {
	c := 1 - stddev(scores)
	if c < confidenceFloor {
		return confidenceFloor
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

func stddev(scores map[Dimension]float64) float64 {
	n := float64(len(scores))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / n
	var varsum float64
	for _, s := range scores {
		d := s - mean
		varsum += d * d
	}
	return math.Sqrt(varsum / n)
}
