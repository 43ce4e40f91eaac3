package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/config"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/executor/paper"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/learn"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/manager"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/notify"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/perception"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/pkg/jsonutil"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// LoopService 负责 判断→决策→执行→结算→学习 的闭环循环。
type LoopService struct {
	cfg       *config.Config
	source    perception.Source
	scorer    *judge.Scorer
	engine    *judge.Engine
	selector  *decision.Selector
	evaluator *learn.Evaluator
	executor  *paper.Executor
	cooldown  *manager.CooldownCache
	limiter   *rate.Limiter
	bus       *events.Bus
	tg        notify.Notifier
	gateway   store.Gateway
}

// LoopServiceConfig 构造参数
type LoopServiceConfig struct {
	Config    *config.Config
	Source    perception.Source
	Scorer    *judge.Scorer
	Engine    *judge.Engine
	Selector  *decision.Selector
	Evaluator *learn.Evaluator
	Executor  *paper.Executor
	Cooldown  *manager.CooldownCache
	Limiter   *rate.Limiter
	Bus       *events.Bus
	Notifier  notify.Notifier // 可为 nil
	Gateway   store.Gateway   // 仅用于关停时释放
}

func NewLoopService(cfg LoopServiceConfig) (*LoopService, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("nil config")
	}
	if cfg.Source == nil || cfg.Scorer == nil || cfg.Engine == nil ||
		cfg.Selector == nil || cfg.Evaluator == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("循环服务依赖不完整")
	}
	if cfg.Cooldown == nil {
		cfg.Cooldown = manager.NewCooldownCache(time.Duration(cfg.Config.Feed.CooldownSeconds) * time.Second)
	}
	if cfg.Limiter == nil {
		burst := int(cfg.Config.Feed.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		cfg.Limiter = rate.NewLimiter(rate.Limit(cfg.Config.Feed.RatePerSecond), burst)
	}
	return &LoopService{
		cfg:       cfg.Config,
		source:    cfg.Source,
		scorer:    cfg.Scorer,
		engine:    cfg.Engine,
		selector:  cfg.Selector,
		evaluator: cfg.Evaluator,
		executor:  cfg.Executor,
		cooldown:  cfg.Cooldown,
		limiter:   cfg.Limiter,
		bus:       cfg.Bus,
		tg:        cfg.Notifier,
		gateway:   cfg.Gateway,
	}, nil
}

// Run 启动闭环循环，直到 ctx 取消。
func (s *LoopService) Run(ctx context.Context) error {
	if s == nil || s.cfg == nil {
		return fmt.Errorf("loop service not initialized")
	}
	cfg := s.cfg
	s.wireFeedback()

	if s.tg != nil {
		_ = s.tg.SendText("*CYNIC 启动成功* ✅\n判断→决策→结果→学习 闭环已开启")
	}

	feedInterval := time.Duration(cfg.Feed.IntervalSeconds) * time.Second
	if feedInterval <= 0 {
		feedInterval = 15 * time.Second
	}
	feedTicker := time.NewTicker(feedInterval)
	settleTicker := time.NewTicker(10 * time.Second)
	statsTicker := time.NewTicker(60 * time.Second)
	defer feedTicker.Stop()
	defer settleTicker.Stop()
	defer statsTicker.Stop()

	human := fmt.Sprintf("%d 秒", int(feedInterval.Seconds()))
	if cfg.Feed.IntervalSeconds%60 == 0 && cfg.Feed.IntervalSeconds > 0 {
		human = fmt.Sprintf("%d 分钟", cfg.Feed.IntervalSeconds/60)
	}
	fmt.Printf("CYNIC 启动完成。开始摄取机会流；每 %s 进行一轮判断决策。按 Ctrl+C 退出。\n", human)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settleTicker.C:
			s.tickSettle(ctx)
		case <-statsTicker.C:
			s.logStats()
		case <-feedTicker.C:
			if err := s.tickCycle(ctx); err != nil {
				logger.Warnf("判断决策循环失败: %v", err)
			}
		}
	}
}

// wireFeedback 学习反馈回灌：课程落地后把最新调整与可靠性推给
// 打分器/选择器；启动时先把恢复出来的历史学习成果推一遍。
func (s *LoopService) wireFeedback() {
	if s.bus != nil {
		s.bus.Subscribe(events.TypeLesson, func(evt events.Event) {
			le, ok := evt.Payload.(learn.LessonEvent)
			if !ok {
				return
			}
			s.scorer.SetAdjustments(le.Adjustments)
			s.selector.SetReliability(le.Reliability)
			logger.Debugf("学习反馈已应用: 调整维度=%d", len(le.Adjustments))
		})
	}
	s.scorer.SetAdjustments(s.evaluator.AdjustmentsSnapshot())
	s.selector.SetReliability(s.evaluator.ReliabilityView())
}

// Close 释放 LoopService 持有的资源。
func (s *LoopService) Close() {
	if s == nil {
		return
	}
	if s.gateway != nil {
		_ = s.gateway.Close()
	}
}

// tickCycle 一轮闭环：拉取机会 → 逐个判断与决策 → 执行或影子跟踪。
func (s *LoopService) tickCycle(ctx context.Context) error {
	cfg := s.cfg
	start := time.Now()
	ops, err := s.source.Pull(ctx)
	if err != nil {
		return fmt.Errorf("拉取机会失败: %w", err)
	}
	if len(ops) == 0 {
		logger.Debugf("本周期无新机会")
		return nil
	}
	logger.Infof("判断决策循环开始 机会=%d", len(ops))

	executed := 0
	held := 0
	for _, op := range ops {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		j := s.engine.Judge(op)
		d := s.selector.Decide(j, s.evaluator.ConfidenceFloor())
		s.logDecision(j, d)

		if d.Action == decision.ActionHold {
			held++
			s.evaluator.RecordAction(j, d)
			s.executor.Observe(ctx, d)
			continue
		}
		if executed >= cfg.Feed.MaxPerCycle {
			logger.Infof("跳过超出本周期执行上限: %s %s", d.Token, d.Action)
			continue
		}
		now := time.Now()
		if !s.cooldown.Allow(d.Token, string(d.Action), now) {
			remain := s.cooldown.Remaining(d.Token, string(d.Action), now).Seconds()
			logger.Infof("跳过频繁执行（冷却中）: %s#%s 剩余 %.0fs", d.Token, d.Action, remain)
			continue
		}
		s.evaluator.RecordAction(j, d)
		if err := s.executor.Execute(ctx, d); err != nil {
			logger.Warnf("纸面执行失败，跳过: %v | %s %s", err, d.Token, d.Action)
			continue
		}
		s.cooldown.Mark(d.Token, string(d.Action), now)
		executed++
	}
	logger.Infof("判断决策循环结束 机会=%d 执行=%d 观望=%d 耗时=%s", len(ops), executed, held, time.Since(start))
	return nil
}

// tickSettle 结算到期持仓并喂给学习器。
func (s *LoopService) tickSettle(ctx context.Context) {
	results := s.executor.Settle(ctx)
	for _, res := range results {
		outcome, lesson := s.evaluator.EvaluateOutcome(res)
		if lesson != nil {
			logger.Infof("📚 课程生成: %s 结局=%s pnl=%+.4f 误导维度=%d", lesson.ID, outcome.Type, outcome.PnL, len(lesson.Contributors))
			logger.Debugf("课程详情:\n%s", jsonutil.Pretty(lesson))
			continue
		}
		logger.Debugf("结果归类: %s → %s pnl=%+.4f", res.ID, outcome.Type, outcome.PnL)
	}
}

func (s *LoopService) logStats() {
	if swept := s.cooldown.Sweep(time.Now()); swept > 0 {
		logger.Debugf("冷却清理: 清除 %d 条过期记录", swept)
	}
	m := s.evaluator.MetricsSnapshot()
	logger.Debugf("运行统计: 待结算=%d 持仓=%d 胜/负=%d/%d 胜率=%.2f 课程=%d 置信下限=%.2f",
		s.evaluator.PendingCount(), s.executor.OpenCount(),
		m.Wins, m.Losses, m.WinRate, m.LessonsLearned, s.evaluator.ConfidenceFloor())
}

func (s *LoopService) logDecision(j judge.Judgment, d decision.Decision) {
	switch d.Action {
	case decision.ActionBuy, decision.ActionSell:
		logger.Infof("决策: %s %s Q=%d verdict=%s size=%.4f conf=%.2f 理由=%s",
			d.Token, d.Action, j.QScore, j.Verdict, d.Size, d.Confidence, d.Reason)
	default:
		logger.Infof("决策: %s HOLD Q=%d verdict=%s 理由=%s", d.Token, j.QScore, j.Verdict, d.Reason)
	}
}
