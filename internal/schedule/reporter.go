package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/learn"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/notify"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/pkg/format"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// Reporter 周期性输出学习会话报告：胜率、累计盈亏、
// 当前置信下限与各动作可靠性。推送通道缺席时只写日志。
type Reporter struct {
	c         *cron.Cron
	evaluator *learn.Evaluator
	notifier  notify.Notifier
}

func NewReporter(spec string, ev *learn.Evaluator, n notify.Notifier) (*Reporter, error) {
	r := &Reporter{c: cron.New(), evaluator: ev, notifier: n}
	if _, err := r.c.AddFunc(spec, r.report); err != nil {
		return nil, fmt.Errorf("注册会话报告任务失败: %w", err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.c.Start()
	logger.Infof("✓ 会话报告任务已启动")
}

func (r *Reporter) Stop() {
	r.c.Stop()
}

func (r *Reporter) report() {
	text := FormatSessionReport(
		r.evaluator.MetricsSnapshot(),
		r.evaluator.ConfidenceFloor(),
		r.evaluator.ReliabilityView(),
	)
	logger.Infof("会话报告\n%s", text)
	if r.notifier != nil {
		if err := r.notifier.SendText(text); err != nil {
			logger.Warnf("会话报告推送失败: %v", err)
		}
	}
}

// FormatSessionReport 拼装报告文本。
func FormatSessionReport(m store.Metrics, floor float64, rel learn.ReliabilityView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 学习会话\n")
	fmt.Fprintf(&b, "胜/负: %d/%d 胜率=%s\n", m.Wins, m.Losses, format.Percent(m.WinRate))
	fmt.Fprintf(&b, "累计盈亏: %+.4f 课程数: %d\n", m.TotalPnL, m.LessonsLearned)
	fmt.Fprintf(&b, "当前置信下限: %s", format.Float(floor, 2))

	if len(rel) > 0 {
		actions := make([]string, 0, len(rel))
		for a := range rel {
			actions = append(actions, string(a))
		}
		sort.Strings(actions)
		b.WriteString("\n动作可靠性:")
		for _, a := range actions {
			c := rel[decision.Action(a)]
			total := c.Successes + c.Failures
			fmt.Fprintf(&b, "\n· %s %d/%d (%s)", a, c.Successes, total,
				format.Percent(float64(c.Successes)/float64(total)))
		}
	}
	return b.String()
}
