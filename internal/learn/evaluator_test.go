package learn

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/perception"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

type stubGateway struct {
	st      *store.State
	loadErr error
	saveErr error
	saved   []store.State
}

func (g *stubGateway) Save(_ context.Context, st store.State) error {
	g.saved = append(g.saved, st)
	return g.saveErr
}

func (g *stubGateway) Load(_ context.Context) (*store.State, error) {
	return g.st, g.loadErr
}

func (g *stubGateway) Close() error { return nil }

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func newTestEvaluator(gw store.Gateway) *Evaluator {
	return NewEvaluator(Options{
		LearningRate:    0.10,
		SignificancePnL: 0.02,
		BreakevenBand:   0.01,
		Gateway:         gw,
		Now:             fixedNow,
	})
}

func makeJudgment(id string, scores map[judge.Dimension]float64) judge.Judgment {
	return judge.Judgment{
		ID:         id,
		Token:      "PEPE",
		VenueID:    "uniswap",
		Direction:  perception.DirectionLong,
		At:         fixedNow(),
		Scores:     scores,
		QScore:     62,
		Verdict:    judge.VerdictBuy,
		Confidence: 0.5,
	}
}

func makeDecision(id, judgmentID string, action decision.Action) decision.Decision {
	return decision.Decision{
		ID:         id,
		JudgmentID: judgmentID,
		Token:      "PEPE",
		VenueID:    "uniswap",
		Action:     action,
		Confidence: 0.5,
		Size:       0.05,
		At:         fixedNow(),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEvaluateOutcome_ProfitUpdatesMetricsAndReliability(t *testing.T) {
	e := newTestEvaluator(nil)
	j := makeJudgment("j1", map[judge.Dimension]float64{judge.DimSafety: 0.6})
	e.RecordAction(j, makeDecision("d1", "j1", decision.ActionBuy))

	outcome, lesson := e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: 0.05})
	if outcome.Type != OutcomeProfitable {
		t.Fatalf("expected profitable, got %s", outcome.Type)
	}
	if !outcome.Executed {
		t.Error("BUY outcome should be marked executed")
	}
	if lesson == nil {
		t.Fatal("pnl above significance should produce a lesson")
	}

	m := e.MetricsSnapshot()
	if m.Wins != 1 || m.Losses != 0 {
		t.Fatalf("expected wins=1 losses=0, got %d/%d", m.Wins, m.Losses)
	}
	if !almostEqual(m.WinRate, 1.0) {
		t.Errorf("expected winRate 1.0, got %.2f", m.WinRate)
	}
	if !almostEqual(m.TotalPnL, 0.05) {
		t.Errorf("expected totalPnL 0.05, got %.4f", m.TotalPnL)
	}
	if m.LessonsLearned != 1 {
		t.Errorf("expected lessonsLearned 1, got %d", m.LessonsLearned)
	}

	// 盈利：successes 在 Beta(1,1) 先验上 +1
	rel := e.ReliabilityView()
	c := rel[decision.ActionBuy]
	if c.Successes != 2 || c.Failures != 1 {
		t.Fatalf("expected BUY counters {2,1}, got {%d,%d}", c.Successes, c.Failures)
	}
	if e.PendingCount() != 0 {
		t.Error("pending record should be consumed")
	}
}

func TestEvaluateOutcome_LossProducesFalsePositiveAndNudge(t *testing.T) {
	e := newTestEvaluator(nil)
	scores := map[judge.Dimension]float64{
		judge.DimSafety:    0.5,
		judge.DimSentiment: 0.9,
		judge.DimMomentum:  0.6,
	}
	e.RecordAction(makeJudgment("j1", scores), makeDecision("d1", "j1", decision.ActionBuy))

	_, lesson := e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: -0.05})
	if lesson == nil {
		t.Fatal("expected a lesson for a significant loss")
	}
	if lesson.Outcome != OutcomeLoss {
		t.Fatalf("expected loss, got %s", lesson.Outcome)
	}
	var found bool
	for _, c := range lesson.Contributors {
		if c.Dimension == judge.DimSentiment && c.Kind == FalsePositive {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sentiment false_positive contributor, got %+v", lesson.Contributors)
	}

	adj := e.AdjustmentsSnapshot()
	if !almostEqual(adj[judge.DimSentiment], -0.05) {
		t.Fatalf("expected sentiment adjustment -0.05, got %.4f", adj[judge.DimSentiment])
	}

	// 同维度再亏一次：调整量单调下降
	e.RecordAction(makeJudgment("j2", scores), makeDecision("d2", "j2", decision.ActionBuy))
	e.EvaluateOutcome(Result{ID: "d2", Success: true, PnL: -0.08})
	adj2 := e.AdjustmentsSnapshot()
	if adj2[judge.DimSentiment] >= adj[judge.DimSentiment] {
		t.Fatalf("adjustment should keep decreasing: %.4f -> %.4f",
			adj[judge.DimSentiment], adj2[judge.DimSentiment])
	}
	if !almostEqual(adj2[judge.DimSentiment], -0.10) {
		t.Errorf("expected -0.10 after two losses, got %.4f", adj2[judge.DimSentiment])
	}

	rel := e.ReliabilityView()
	c := rel[decision.ActionBuy]
	if c.Successes != 1 || c.Failures != 3 {
		t.Fatalf("expected BUY counters {1,3}, got {%d,%d}", c.Successes, c.Failures)
	}
}

func TestEvaluateOutcome_BreakevenTouchesNothing(t *testing.T) {
	e := newTestEvaluator(nil)
	e.RecordAction(makeJudgment("j1", nil), makeDecision("d1", "j1", decision.ActionBuy))

	outcome, lesson := e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: 0.005})
	if outcome.Type != OutcomeBreakeven {
		t.Fatalf("expected breakeven, got %s", outcome.Type)
	}
	if lesson != nil {
		t.Fatal("breakeven within significance should not produce a lesson")
	}
	m := e.MetricsSnapshot()
	if m.Wins != 0 || m.Losses != 0 || m.LessonsLearned != 0 {
		t.Fatalf("metrics should be untouched, got %+v", m)
	}
	if len(e.ReliabilityView()) != 0 {
		t.Error("breakeven should not touch reliability counters")
	}
}

func TestEvaluateOutcome_SynthesizesUnknownResult(t *testing.T) {
	e := newTestEvaluator(nil)
	outcome, lesson := e.EvaluateOutcome(Result{ID: "ghost", Success: true, PnL: -0.09})
	if outcome.Type != OutcomeLoss {
		t.Fatalf("expected loss, got %s", outcome.Type)
	}
	if !outcome.Executed {
		t.Error("synthesized record counts as executed")
	}
	if outcome.DecisionID != "ghost" {
		t.Errorf("expected decision id ghost, got %s", outcome.DecisionID)
	}
	m := e.MetricsSnapshot()
	if m.Losses != 1 {
		t.Fatalf("expected losses=1, got %d", m.Losses)
	}
	// 动作未知：不碰可靠性
	if len(e.ReliabilityView()) != 0 {
		t.Error("unknown action must not update reliability")
	}
	// 无评分：课程存在但没有维度归因
	if lesson == nil {
		t.Fatal("significant loss should still produce a lesson")
	}
	if len(lesson.Contributors) != 0 {
		t.Errorf("synthesized record has no scores, got contributors %+v", lesson.Contributors)
	}
}

func TestEvaluateOutcome_HoldMissedAndAvoided(t *testing.T) {
	e := newTestEvaluator(nil)

	lowScores := map[judge.Dimension]float64{judge.DimMomentum: 0.2, judge.DimSafety: 0.5}
	e.RecordAction(makeJudgment("j1", lowScores), makeDecision("d1", "j1", decision.ActionHold))
	outcome, lesson := e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: 0.06})
	if outcome.Type != OutcomeMissed {
		t.Fatalf("expected missed_opportunity, got %s", outcome.Type)
	}
	if outcome.Executed {
		t.Error("HOLD outcome must not be marked executed")
	}
	if lesson == nil {
		t.Fatal("missed opportunity above significance should teach")
	}
	var fn bool
	for _, c := range lesson.Contributors {
		if c.Dimension == judge.DimMomentum && c.Kind == FalseNegative {
			fn = true
		}
	}
	if !fn {
		t.Errorf("expected momentum false_negative, got %+v", lesson.Contributors)
	}

	e.RecordAction(makeJudgment("j2", nil), makeDecision("d2", "j2", decision.ActionHold))
	outcome2, lesson2 := e.EvaluateOutcome(Result{ID: "d2", Success: true, PnL: -0.06})
	if outcome2.Type != OutcomeAvoided {
		t.Fatalf("expected avoided_loss, got %s", outcome2.Type)
	}
	if lesson2 != nil {
		t.Fatalf("avoided loss confirms the hold, no lesson expected, got %+v", lesson2)
	}

	// 观望结果不进胜负与可靠性
	m := e.MetricsSnapshot()
	if m.Wins != 0 || m.Losses != 0 {
		t.Fatalf("HOLD outcomes must not move wins/losses, got %d/%d", m.Wins, m.Losses)
	}
	if !almostEqual(m.TotalPnL, 0) {
		t.Errorf("hypothetical pnl must not accrue, got %.4f", m.TotalPnL)
	}
	if len(e.ReliabilityView()) != 0 {
		t.Error("HOLD outcomes must not touch reliability")
	}
}

func TestEvaluateOutcome_ExecFailureAlwaysTeaches(t *testing.T) {
	e := newTestEvaluator(nil)
	e.RecordAction(makeJudgment("j1", nil), makeDecision("d1", "j1", decision.ActionBuy))

	_, lesson := e.EvaluateOutcome(Result{ID: "d1", Success: false, PnL: 0})
	if lesson == nil {
		t.Fatal("execution failure must always produce a lesson")
	}
	if lesson.Recommendation == "" {
		t.Error("expected a recommendation for execution failure")
	}
}

func TestRestore_ValidStaleAndBroken(t *testing.T) {
	valid := &store.State{
		Version:   store.CurrentVersion,
		UpdatedAt: fixedNow().Add(-24 * time.Hour).UnixMilli(),
		DimensionAdjustments: map[string]float64{
			string(judge.DimSentiment): -0.15,
		},
		ActionReliability: map[string]store.ReliabilityCounters{
			string(decision.ActionBuy): {Successes: 4, Failures: 0}, // failures 越界，应提升到 1
		},
		Metrics: store.Metrics{Wins: 6, Losses: 4, WinRate: 0.6, LessonsLearned: 3},
	}
	e := newTestEvaluator(&stubGateway{st: valid})
	adj := e.AdjustmentsSnapshot()
	if !almostEqual(adj[judge.DimSentiment], -0.15) {
		t.Fatalf("expected restored adjustment -0.15, got %.4f", adj[judge.DimSentiment])
	}
	c := e.ReliabilityView()[decision.ActionBuy]
	if c.Successes != 4 || c.Failures != 1 {
		t.Fatalf("restore must enforce counters >= 1, got {%d,%d}", c.Successes, c.Failures)
	}
	if e.MetricsSnapshot().Wins != 6 {
		t.Errorf("expected restored wins=6, got %d", e.MetricsSnapshot().Wins)
	}

	stale := &store.State{
		Version:              store.CurrentVersion,
		UpdatedAt:            fixedNow().Add(-31 * 24 * time.Hour).UnixMilli(),
		DimensionAdjustments: map[string]float64{string(judge.DimSafety): 0.3},
		Metrics:              store.Metrics{Wins: 99},
	}
	e2 := newTestEvaluator(&stubGateway{st: stale})
	if len(e2.AdjustmentsSnapshot()) != 0 || e2.MetricsSnapshot().Wins != 0 {
		t.Fatal("snapshot older than 30 days must fall back to defaults")
	}

	wrongVersion := &store.State{Version: 2, UpdatedAt: fixedNow().UnixMilli(), Metrics: store.Metrics{Wins: 99}}
	e3 := newTestEvaluator(&stubGateway{st: wrongVersion})
	if e3.MetricsSnapshot().Wins != 0 {
		t.Fatal("unknown snapshot version must fall back to defaults")
	}

	e4 := newTestEvaluator(&stubGateway{loadErr: errors.New("disk on fire")})
	if e4 == nil || e4.MetricsSnapshot().Wins != 0 {
		t.Fatal("load failure must fall back to defaults, not propagate")
	}
}

func TestPersistAfterLesson(t *testing.T) {
	gw := &stubGateway{}
	e := newTestEvaluator(gw)
	scores := map[judge.Dimension]float64{judge.DimSentiment: 0.9}
	e.RecordAction(makeJudgment("j1", scores), makeDecision("d1", "j1", decision.ActionBuy))

	e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: -0.05})
	if len(gw.saved) != 1 {
		t.Fatalf("expected one snapshot save after lesson, got %d", len(gw.saved))
	}
	st := gw.saved[0]
	if st.Version != store.CurrentVersion {
		t.Errorf("expected version %d, got %d", store.CurrentVersion, st.Version)
	}
	if st.UpdatedAt != fixedNow().UnixMilli() {
		t.Errorf("expected updatedAt %d, got %d", fixedNow().UnixMilli(), st.UpdatedAt)
	}
	if !almostEqual(st.DimensionAdjustments[string(judge.DimSentiment)], -0.05) {
		t.Errorf("snapshot should carry the new adjustment, got %+v", st.DimensionAdjustments)
	}
	if st.Metrics.Losses != 1 || st.Metrics.LessonsLearned != 1 {
		t.Errorf("snapshot metrics wrong: %+v", st.Metrics)
	}

	// 持久化失败：吞掉，不影响评估结果
	gw.saveErr = errors.New("readonly fs")
	e.RecordAction(makeJudgment("j2", scores), makeDecision("d2", "j2", decision.ActionBuy))
	outcome, lesson := e.EvaluateOutcome(Result{ID: "d2", Success: true, PnL: -0.05})
	if outcome.Type != OutcomeLoss || lesson == nil {
		t.Fatal("persistence failure must not change evaluation results")
	}
}

func TestLessonEventCarriesSnapshots(t *testing.T) {
	bus := events.NewBus()
	var got []LessonEvent
	bus.Subscribe(events.TypeLesson, func(evt events.Event) {
		if p, ok := evt.Payload.(LessonEvent); ok {
			got = append(got, p)
		}
	})
	e := NewEvaluator(Options{Bus: bus, Now: fixedNow})
	scores := map[judge.Dimension]float64{judge.DimSentiment: 0.9}
	e.RecordAction(makeJudgment("j1", scores), makeDecision("d1", "j1", decision.ActionBuy))
	e.EvaluateOutcome(Result{ID: "d1", Success: true, PnL: -0.05})

	if len(got) != 1 {
		t.Fatalf("expected one lesson event, got %d", len(got))
	}
	evt := got[0]
	if evt.Lesson.Outcome != OutcomeLoss {
		t.Errorf("expected loss lesson, got %s", evt.Lesson.Outcome)
	}
	if !almostEqual(evt.Adjustments[judge.DimSentiment], -0.05) {
		t.Errorf("event adjustments snapshot wrong: %+v", evt.Adjustments)
	}
	if _, ok := evt.Reliability.Score(decision.ActionBuy); !ok {
		t.Error("event reliability snapshot should know BUY")
	}

	// 载荷是快照：后续学习不得改写已发事件
	e.RecordAction(makeJudgment("j2", scores), makeDecision("d2", "j2", decision.ActionBuy))
	e.EvaluateOutcome(Result{ID: "d2", Success: true, PnL: -0.05})
	if !almostEqual(evt.Adjustments[judge.DimSentiment], -0.05) {
		t.Error("emitted payload must stay immutable")
	}
}

func TestConfidenceFloorFollowsWinRate(t *testing.T) {
	e := newTestEvaluator(nil)
	if !almostEqual(e.ConfidenceFloor(), floorDefault) {
		t.Fatalf("no samples: expected default floor %.2f, got %.2f", floorDefault, e.ConfidenceFloor())
	}
	// 10 次全胜：下限压到激进下界
	for i := 0; i < 10; i++ {
		id := "w" + string(rune('0'+i))
		e.RecordAction(makeJudgment(id, nil), makeDecision(id, id, decision.ActionBuy))
		e.EvaluateOutcome(Result{ID: id, Success: true, PnL: 0.03})
	}
	if !almostEqual(e.ConfidenceFloor(), floorLower) {
		t.Fatalf("all wins: expected %.2f, got %.2f", floorLower, e.ConfidenceFloor())
	}
}

// 可靠性闸的两个基准计数：{2,8} 拦下 BUY，{11,9} 放行。
func TestReliabilityGateThroughSelector(t *testing.T) {
	badState := &store.State{
		Version:   store.CurrentVersion,
		UpdatedAt: fixedNow().UnixMilli(),
		ActionReliability: map[string]store.ReliabilityCounters{
			string(decision.ActionBuy): {Successes: 2, Failures: 8},
		},
	}
	e := newTestEvaluator(&stubGateway{st: badState})
	sel := decision.NewSelector(decision.SelectorOptions{
		MinSize:     0.01,
		MaxSize:     0.10,
		Reliability: e.ReliabilityView(),
	})
	j := makeJudgment("j1", map[judge.Dimension]float64{judge.DimSafety: 0.8})
	d := sel.Decide(j, 0.10)
	if d.Action != decision.ActionHold {
		t.Fatalf("mean 0.2 must be gated to HOLD, got %s", d.Action)
	}

	goodState := &store.State{
		Version:   store.CurrentVersion,
		UpdatedAt: fixedNow().UnixMilli(),
		ActionReliability: map[string]store.ReliabilityCounters{
			string(decision.ActionBuy): {Successes: 11, Failures: 9},
		},
	}
	e2 := newTestEvaluator(&stubGateway{st: goodState})
	sel2 := decision.NewSelector(decision.SelectorOptions{
		MinSize:     0.01,
		MaxSize:     0.10,
		Reliability: e2.ReliabilityView(),
	})
	d2 := sel2.Decide(j, 0.10)
	if d2.Action != decision.ActionBuy {
		t.Fatalf("mean 0.55 passes the gate, got %s (%s)", d2.Action, d2.Reason)
	}
	if d2.Size <= 0 {
		t.Error("passing decision should carry a position size")
	}
}

// 全链路：小幅 LONG 信号 → 判断 → 决策 → 亏损回报 → 课程含 false_positive。
func TestJudgeDecideLearnCycle(t *testing.T) {
	bus := events.NewBus()
	scorer := judge.NewScorer()
	engine := judge.NewEngine(scorer, 16, bus)
	e := NewEvaluator(Options{Bus: bus, Now: fixedNow})
	sel := decision.NewSelector(decision.SelectorOptions{
		MinSize:     0.01,
		MaxSize:     0.10,
		Reliability: e.ReliabilityView(),
		Bus:         bus,
	})

	op := perception.Opportunity{
		ID:        "op-1",
		Token:     "PEPE",
		VenueID:   "uniswap",
		Direction: perception.DirectionLong,
		Magnitude: 0.08,
		Signal: perception.Signal{
			Type: perception.SignalPriceSpike,
			Data: map[string]float64{
				"sentiment": 0.9,
				"liquidity": 0.6,
				"safety":    0.8,
			},
		},
	}

	j := engine.Judge(op)
	if j.QScore < 40 || j.QScore >= 75 {
		t.Fatalf("expected mid-band q score, got %d", j.QScore)
	}
	if j.OverrideRule != "" {
		t.Fatalf("no override expected, got %s", j.OverrideRule)
	}

	d := sel.Decide(j, e.ConfidenceFloor())
	if d.Action != decision.ActionBuy && d.Action != decision.ActionHold {
		t.Fatalf("mid-band verdict must map to BUY or HOLD, got %s", d.Action)
	}

	e.RecordAction(j, d)
	outcome, lesson := e.EvaluateOutcome(Result{ID: d.ID, Success: true, PnL: -0.05})
	if outcome.Type != OutcomeLoss && outcome.Type != OutcomeAvoided {
		t.Fatalf("negative pnl must classify as loss-side, got %s", outcome.Type)
	}
	if lesson == nil {
		t.Fatal("significant loss must produce a lesson")
	}
	var fp int
	for _, c := range lesson.Contributors {
		if c.Kind == FalsePositive {
			fp++
		}
	}
	if fp == 0 {
		t.Fatalf("expected at least one false_positive contributor, got %+v", lesson.Contributors)
	}
}
