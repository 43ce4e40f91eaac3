package learn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// 中文说明：
// 结果评估器（学习器）：闭环的后半段。
// 归类结果 → 更新指标与可靠性 → 显著时提炼课程并累积维度调整 →
// 每课后同步落盘（失败仅告警）→ 发出 lesson 事件供上层推送新快照。
// EvaluateOutcome 永不对调用方抛错。

// 每课调整步长 = learningRate × 该系数
const adjustmentStepFraction = 0.5

// Options 构造参数
type Options struct {
	LearningRate    float64
	SignificancePnL float64
	BreakevenBand   float64
	Gateway         store.Gateway // 可为 nil：持久化关闭
	Journal         store.Journal // 可为 nil：流水关闭
	Bus             *events.Bus
	LessonCap       int
	Now             func() time.Time // 测试注入
}

// LessonEvent lesson 事件载荷：课程本体 + 推送用的最新快照。
type LessonEvent struct {
	Lesson      Lesson
	Adjustments map[judge.Dimension]float64
	Reliability ReliabilityView
}

// Evaluator 结果评估器。共享结构由单一互斥锁保护。
type Evaluator struct {
	mu           sync.Mutex
	learningRate float64
	significance float64
	band         float64
	adjustments  map[judge.Dimension]float64
	reliability  map[decision.Action]store.ReliabilityCounters
	metrics      store.Metrics
	pending      map[string]pendingAction
	lessons      []Lesson
	lessonCap    int
	gateway      store.Gateway
	journal      store.Journal
	bus          *events.Bus
	now          func() time.Time
}

func NewEvaluator(opts Options) *Evaluator {
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.10
	}
	if opts.SignificancePnL <= 0 {
		opts.SignificancePnL = 0.02
	}
	if opts.BreakevenBand <= 0 {
		opts.BreakevenBand = 0.01
	}
	if opts.LessonCap <= 0 {
		opts.LessonCap = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Evaluator{
		learningRate: opts.LearningRate,
		significance: opts.SignificancePnL,
		band:         opts.BreakevenBand,
		adjustments:  map[judge.Dimension]float64{},
		reliability:  map[decision.Action]store.ReliabilityCounters{},
		pending:      map[string]pendingAction{},
		lessonCap:    opts.LessonCap,
		gateway:      opts.Gateway,
		journal:      opts.Journal,
		bus:          opts.Bus,
		now:          opts.Now,
	}
	e.restore()
	return e
}

// restore 启动时恢复快照；任何失败都回到默认值，不向上传播。
func (e *Evaluator) restore() {
	if e.gateway == nil {
		return
	}
	st, err := e.gateway.Load(context.Background())
	if err != nil {
		logger.Warnf("读取学习状态失败，使用默认值: %v", err)
		return
	}
	if st == nil {
		return
	}
	if !st.Valid(e.now()) {
		logger.Infof("学习状态快照过期或版本不符，使用默认值")
		return
	}
	for k, v := range st.DimensionAdjustments {
		e.adjustments[judge.Dimension(k)] = v
	}
	for k, c := range st.ActionReliability {
		if c.Successes < 1 {
			c.Successes = 1
		}
		if c.Failures < 1 {
			c.Failures = 1
		}
		e.reliability[decision.Action(k)] = c
	}
	e.metrics = st.Metrics
	logger.Infof("✓ 学习状态已恢复: 调整维度=%d 胜率=%.2f 课程数=%d",
		len(e.adjustments), e.metrics.WinRate, e.metrics.LessonsLearned)
}

// RecordAction 登记在途动作：结果回报到达时据此匹配判断与决策。
func (e *Evaluator) RecordAction(j judge.Judgment, d decision.Decision) {
	e.mu.Lock()
	e.pending[d.ID] = pendingAction{
		Judgment:   j.Clone(),
		Decision:   d,
		RecordedAt: e.now(),
	}
	e.mu.Unlock()
	e.appendDecisionJournal(j, d)
}

// EvaluateOutcome 归类一次结果并完成全部学习更新。
// 不产生课程时第二个返回值为 nil。
func (e *Evaluator) EvaluateOutcome(res Result) (Outcome, *Lesson) {
	e.mu.Lock()
	now := e.now()
	rec, found := e.pending[res.ID]
	if found {
		delete(e.pending, res.ID)
	} else {
		rec = synthesizePending(res.ID, now)
		logger.Debugf("结果 %s 无在途记录，按最小记录处理", res.ID)
	}

	executed := rec.Synthesized ||
		rec.Decision.Action == decision.ActionBuy || rec.Decision.Action == decision.ActionSell

	outcome := Outcome{
		DecisionID: rec.Decision.ID,
		Type:       classify(res.PnL, e.band, executed),
		PnL:        res.PnL,
		Executed:   executed,
		At:         now,
	}

	if executed {
		switch outcome.Type {
		case OutcomeProfitable:
			e.metrics.Wins++
		case OutcomeLoss:
			e.metrics.Losses++
		}
		e.metrics.TotalPnL += res.PnL
		if total := e.metrics.Wins + e.metrics.Losses; total > 0 {
			e.metrics.WinRate = float64(e.metrics.Wins) / float64(total)
		}
	}
	e.updateReliabilityLocked(rec, outcome.Type)

	var lesson *Lesson
	var evtPayload *LessonEvent
	var snapshot *store.State
	// 躲过的亏损说明观望正确，无可归因的误导，不产生课程。
	if e.significant(res) && outcome.Type != OutcomeAvoided {
		lesson = e.deriveLessonLocked(rec, outcome, res, now)
		evtPayload = &LessonEvent{
			Lesson:      lesson.Clone(),
			Adjustments: e.adjustmentsSnapshotLocked(),
			Reliability: e.reliabilityViewLocked(),
		}
		st := e.stateSnapshotLocked(now)
		snapshot = &st
	}
	e.mu.Unlock()

	if lesson != nil {
		e.appendLessonJournal(*lesson)
		if snapshot != nil {
			e.persist(*snapshot)
		}
		e.bus.Emit(events.Event{Type: events.TypeLesson, Payload: *evtPayload})
	}
	return outcome, lesson
}

// classify 盈亏归类：执行过的动作按盈利/亏损/持平；
// 观望动作的假想盈亏归为错失/躲过。
func classify(pnl, band float64, executed bool) OutcomeType {
	switch {
	case pnl > band:
		if executed {
			return OutcomeProfitable
		}
		return OutcomeMissed
	case pnl < -band:
		if executed {
			return OutcomeLoss
		}
		return OutcomeAvoided
	default:
		return OutcomeBreakeven
	}
}

// updateReliabilityLocked 盈利 → successes++，亏损 → failures++，
// 持平不动。仅对已知的 BUY/SELL 动作计数（补造记录动作未知，跳过）。
func (e *Evaluator) updateReliabilityLocked(rec pendingAction, outcome OutcomeType) {
	action := rec.Decision.Action
	if action != decision.ActionBuy && action != decision.ActionSell {
		return
	}
	c := ensureCounters(e.reliability, action)
	switch outcome {
	case OutcomeProfitable:
		c.Successes++
	case OutcomeLoss:
		c.Failures++
	default:
		return
	}
	e.reliability[action] = c
}

func (e *Evaluator) significant(res Result) bool {
	if !res.Success {
		return true
	}
	pnl := res.PnL
	if pnl < 0 {
		pnl = -pnl
	}
	return pnl > e.significance
}

// deriveLessonLocked 提炼课程并累积维度调整（无界累积，
// 收敛发生在评分应用时）。
func (e *Evaluator) deriveLessonLocked(rec pendingAction, outcome Outcome, res Result, now time.Time) *Lesson {
	contributors := findContributors(rec.Judgment.Scores, outcome.Type)
	step := e.learningRate * adjustmentStepFraction
	for _, c := range contributors {
		if c.Kind == FalsePositive {
			e.adjustments[c.Dimension] -= step
		} else {
			e.adjustments[c.Dimension] += step
		}
	}
	e.metrics.LessonsLearned++

	lesson := Lesson{
		ID:             uuid.NewString(),
		DecisionID:     rec.Decision.ID,
		Outcome:        outcome.Type,
		PnL:            res.PnL,
		Contributors:   contributors,
		Recommendation: buildRecommendation(outcome.Type, !res.Success, contributors),
		At:             now,
	}
	e.lessons = append(e.lessons, lesson)
	if len(e.lessons) > e.lessonCap {
		e.lessons = e.lessons[len(e.lessons)-e.lessonCap:]
	}
	return &lesson
}

// ConfidenceFloor 当前自适应置信下限（供动作选择时传入）。
func (e *Evaluator) ConfidenceFloor() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return adaptiveFloor(e.metrics.Wins, e.metrics.Losses)
}

// AdjustmentsSnapshot 维度调整快照。
func (e *Evaluator) AdjustmentsSnapshot() map[judge.Dimension]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adjustmentsSnapshotLocked()
}

// ReliabilityView 可靠性只读视图快照。
func (e *Evaluator) ReliabilityView() ReliabilityView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reliabilityViewLocked()
}

// MetricsSnapshot 聚合指标快照。
func (e *Evaluator) MetricsSnapshot() store.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Lessons 课程历史快照（从旧到新）。
func (e *Evaluator) Lessons() []Lesson {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Lesson, len(e.lessons))
	for i, l := range e.lessons {
		out[i] = l.Clone()
	}
	return out
}

// PendingCount 在途动作数（观测用）。
func (e *Evaluator) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Evaluator) adjustmentsSnapshotLocked() map[judge.Dimension]float64 {
	out := make(map[judge.Dimension]float64, len(e.adjustments))
	for k, v := range e.adjustments {
		out[k] = v
	}
	return out
}

func (e *Evaluator) reliabilityViewLocked() ReliabilityView {
	out := make(ReliabilityView, len(e.reliability))
	for k, v := range e.reliability {
		out[k] = v
	}
	return out
}

func (e *Evaluator) stateSnapshotLocked(now time.Time) store.State {
	adj := make(map[string]float64, len(e.adjustments))
	for k, v := range e.adjustments {
		adj[string(k)] = v
	}
	rel := make(map[string]store.ReliabilityCounters, len(e.reliability))
	for k, v := range e.reliability {
		rel[string(k)] = v
	}
	return store.State{
		Version:              store.CurrentVersion,
		UpdatedAt:            now.UnixMilli(),
		DimensionAdjustments: adj,
		ActionReliability:    rel,
		Metrics:              e.metrics,
	}
}

// persist 同步落盘，带有界退避重试；最终失败仅记录告警。
func (e *Evaluator) persist(st store.State) {
	if e.gateway == nil {
		return
	}
	op := func() error {
		return e.gateway.Save(context.Background(), st)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 3 * time.Second
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 3)); err != nil {
		logger.Warnf("持久化学习状态失败（已忽略）: %v", err)
	}
}

func (e *Evaluator) appendDecisionJournal(j judge.Judgment, d decision.Decision) {
	if e.journal == nil {
		return
	}
	rec := store.DecisionRecord{
		ID:         d.ID,
		JudgmentID: j.ID,
		Token:      d.Token,
		VenueID:    d.VenueID,
		Action:     string(d.Action),
		Confidence: d.Confidence,
		Size:       d.Size,
		QScore:     j.QScore,
		Verdict:    string(j.Verdict),
		Reason:     d.Reason,
		At:         d.At.UnixMilli(),
	}
	if err := e.journal.AppendDecision(context.Background(), rec); err != nil {
		logger.Warnf("写入决策流水失败（已忽略）: %v", err)
	}
}

func (e *Evaluator) appendLessonJournal(l Lesson) {
	if e.journal == nil {
		return
	}
	contributors := "[]"
	if buf, err := json.Marshal(l.Contributors); err == nil {
		contributors = string(buf)
	}
	rec := store.LessonRecord{
		ID:           l.ID,
		DecisionID:   l.DecisionID,
		Outcome:      string(l.Outcome),
		PnL:          l.PnL,
		Contributors: contributors,
		At:           l.At.UnixMilli(),
	}
	if err := e.journal.AppendLesson(context.Background(), rec); err != nil {
		logger.Warnf("写入课程流水失败（已忽略）: %v", err)
	}
}
