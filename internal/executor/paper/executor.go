package paper

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/learn"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
)

// 中文说明：
// 纸面执行器：不触达任何交易所。动作登记为虚拟持仓，
// 到结算窗口后按确定性随机数生成盈亏回报，供学习器闭环。
// 真实执行通道是外部协作方，这里只保证回报形状一致。

const (
	defaultSettleDelay = 30 * time.Second
	defaultFailRate    = 0.05 // 模拟执行失败的概率
	maxMovePerTrade    = 0.12 // 单笔最大模拟波动（收益率）
	pnlPrecision       = 4
)

type openPosition struct {
	dec      decision.Decision
	openedAt time.Time
	failed   bool
}

// Executor 纸面执行器
type Executor struct {
	mu     sync.Mutex
	rng    *rand.Rand
	settle time.Duration
	open   map[string]openPosition
	now    func() time.Time
}

// Options 构造参数
type Options struct {
	Seed        int64
	SettleDelay time.Duration
	Now         func() time.Time // 测试注入
}

func New(opts Options) *Executor {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{
		rng:    rand.New(rand.NewSource(opts.Seed)),
		settle: opts.SettleDelay,
		open:   map[string]openPosition{},
		now:    opts.Now,
	}
}

func (e *Executor) Name() string { return "paper" }

// Execute 登记一笔虚拟持仓。HOLD 不是可执行动作。
func (e *Executor) Execute(_ context.Context, d decision.Decision) error {
	if d.Action != decision.ActionBuy && d.Action != decision.ActionSell {
		return errors.New("HOLD 无需执行")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[d.ID] = openPosition{
		dec:      d,
		openedAt: e.now(),
		failed:   e.rng.Float64() < defaultFailRate,
	}
	logger.Debugf("纸面开仓: %s %s %s size=%.4f", d.Token, d.Action, d.ID, d.Size)
	return nil
}

// Settle 结算所有超过结算窗口的持仓，返回回报列表（乱序）。
func (e *Executor) Settle(_ context.Context) []learn.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	var out []learn.Result
	for id, pos := range e.open {
		if now.Sub(pos.openedAt) < e.settle {
			continue
		}
		delete(e.open, id)
		if pos.failed {
			out = append(out, learn.Result{ID: id, Success: false, Simulated: true})
			logger.Warnf("纸面执行失败: %s %s", pos.dec.Token, id)
			continue
		}
		out = append(out, learn.Result{
			ID:        id,
			Success:   true,
			PnL:       e.simulatePnL(pos.dec),
			Simulated: true,
		})
	}
	return out
}

// Observe 对 HOLD 决策登记影子仓位：不执行任何动作，
// 仅跟踪结算窗口内的模拟走势，供学习器归类 missed/avoided。
func (e *Executor) Observe(_ context.Context, d decision.Decision) {
	if d.Action != decision.ActionHold {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[d.ID] = openPosition{dec: d, openedAt: e.now()}
	logger.Debugf("影子跟踪: %s %s", d.Token, d.ID)
}

// OpenCount 当前虚拟持仓数（含影子仓位，观测用）。
func (e *Executor) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// simulatePnL 模拟收益率：对称波动，SELL 取反向。
// 仓位越大波动越接近满幅，模拟滑点吃掉小仓收益的效果。
func (e *Executor) simulatePnL(d decision.Decision) float64 {
	move := (e.rng.Float64()*2 - 1) * maxMovePerTrade
	if d.Action == decision.ActionSell {
		move = -move
	}
	scale := 0.5 + 0.5*math.Min(d.Size*10, 1)
	return roundTo(move*scale, pnlPrecision)
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
