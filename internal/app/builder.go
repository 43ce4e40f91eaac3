package app

import (
	"context"
	"fmt"
	"strings"
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
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/schedule"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/transport/web"
)

// AppBuilder 按配置组装全部依赖。构建顺序：存储→事件总线→
// 感知/判断/决策/学习→执行器→通知与周边服务。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

// Build 组装 App（不启动任何 goroutine）。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	gw, err := store.NewGateway(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化存储后端失败: %w", err)
	}
	logger.Infof("✓ 学习状态存储已就绪: backend=%s", cfg.Store.Backend)
	journal, _ := gw.(store.Journal)
	reader, _ := gw.(store.JournalReader)

	bus := events.NewBus()

	source, err := buildSource(cfg.Feed)
	if err != nil {
		return nil, err
	}

	scorer := judge.NewScorer()
	engine := judge.NewEngine(scorer, cfg.Judge.HistorySize, bus)
	selector := decision.NewSelector(decision.SelectorOptions{
		MinSize:       cfg.Decision.MinSize,
		MaxSize:       cfg.Decision.MaxSize,
		MaxConfidence: cfg.Decision.MaxConfidence,
		HistorySize:   cfg.Decision.HistorySize,
		Bus:           bus,
	})
	evaluator := learn.NewEvaluator(learn.Options{
		LearningRate:    cfg.Learn.LearningRate,
		SignificancePnL: cfg.Learn.SignificancePnL,
		BreakevenBand:   cfg.Learn.BreakevenBand,
		Gateway:         gw,
		Journal:         journal,
		Bus:             bus,
	})
	executor := paper.New(paper.Options{Seed: cfg.Feed.Seed})

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		notify.AttachBus(bus, notifier)
	}

	webServer, err := buildWebServer(cfg, engine, selector, evaluator, reader)
	if err != nil {
		return nil, err
	}
	reporter, err := buildReporter(cfg.Schedule, evaluator, notifier)
	if err != nil {
		return nil, err
	}

	loop, err := NewLoopService(LoopServiceConfig{
		Config:    cfg,
		Source:    source,
		Scorer:    scorer,
		Engine:    engine,
		Selector:  selector,
		Evaluator: evaluator,
		Executor:  executor,
		Cooldown:  manager.NewCooldownCache(time.Duration(cfg.Feed.CooldownSeconds) * time.Second),
		Limiter:   buildLimiter(cfg.Feed),
		Bus:       bus,
		Notifier:  notifierOrNil(notifier),
		Gateway:   gw,
	})
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, loop: loop, web: webServer, reporter: reporter}, nil
}

// notifierOrNil 避免 nil 指针装进非 nil 接口。
func notifierOrNil(n *notify.TelegramNotifier) notify.Notifier {
	if n == nil {
		return nil
	}
	return n
}

func buildSource(cfg config.FeedConfig) (perception.Source, error) {
	if strings.EqualFold(cfg.Source, "http") {
		src := perception.NewHTTPSource(cfg.APIURL)
		logger.Infof("✓ 机会源已就绪: %s (%s)", src.Name(), cfg.APIURL)
		return src, nil
	}
	src, err := perception.NewSyntheticSource(cfg.Tokens, cfg.Venue, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("初始化合成机会源失败: %w", err)
	}
	logger.Infof("✓ 机会源已就绪: %s (%d 个候选币)", src.Name(), len(cfg.Tokens))
	return src, nil
}

func buildLimiter(cfg config.FeedConfig) *rate.Limiter {
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

func buildNotifier(cfg config.NotifyConfig) (*notify.TelegramNotifier, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	n, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram 通知失败: %w", err)
	}
	logger.Infof("✓ Telegram 通知已启用: chat=%s", cfg.Telegram.ChatID)
	return n, nil
}

func buildWebServer(cfg *config.Config, engine *judge.Engine, selector *decision.Selector, evaluator *learn.Evaluator, reader store.JournalReader) (*web.Server, error) {
	if strings.TrimSpace(cfg.App.HTTPAddr) == "" {
		return nil, nil
	}
	server, err := web.NewServer(web.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Env:       cfg.App.Env,
		Engine:    engine,
		Selector:  selector,
		Evaluator: evaluator,
		Journal:   reader,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 接口失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", server.Addr())
	return server, nil
}

func buildReporter(cfg config.ScheduleConfig, evaluator *learn.Evaluator, notifier *notify.TelegramNotifier) (*schedule.Reporter, error) {
	spec := strings.TrimSpace(cfg.ReportCron)
	if spec == "" || strings.EqualFold(spec, "off") {
		return nil, nil
	}
	reporter, err := schedule.NewReporter(spec, evaluator, notifierOrNil(notifier))
	if err != nil {
		return nil, fmt.Errorf("初始化会话报告任务失败: %w", err)
	}
	logger.Infof("✓ 会话报告任务已注册: %s", spec)
	return reporter, nil
}
