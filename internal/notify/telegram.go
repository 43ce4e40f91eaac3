package notify

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/events"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/learn"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
)

// Notifier 最小文本推送接口。
type Notifier interface {
	SendText(text string) error
}

// TelegramNotifier 通过 Telegram Bot 推送文本。
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(botToken, chatID string) (*TelegramNotifier, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat_id 非法: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram Bot 失败: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: id}, nil
}

func (n *TelegramNotifier) SendText(text string) error {
	if n == nil || n.bot == nil {
		return nil
	}
	_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text))
	return err
}

// AttachBus 订阅决策与课程事件并推送摘要。
// 观望决策不打扰人，只推实际动作与学到的课程。
func AttachBus(bus *events.Bus, n Notifier) {
	if bus == nil || n == nil {
		return
	}
	bus.Subscribe(events.TypeDecision, func(evt events.Event) {
		d, ok := evt.Payload.(decision.Decision)
		if !ok || d.Action == decision.ActionHold {
			return
		}
		if err := n.SendText(FormatDecision(d)); err != nil {
			logger.Warnf("决策推送失败: %v", err)
		}
	})
	bus.Subscribe(events.TypeLesson, func(evt events.Event) {
		le, ok := evt.Payload.(learn.LessonEvent)
		if !ok {
			return
		}
		if err := n.SendText(FormatLesson(le.Lesson)); err != nil {
			logger.Warnf("课程推送失败: %v", err)
		}
	})
}

// FormatDecision 动作摘要文本。
func FormatDecision(d decision.Decision) string {
	mark := "🟢"
	if d.Action == decision.ActionSell {
		mark = "🔴"
	}
	return fmt.Sprintf("%s %s %s@%s 仓位=%.4f 置信=%.2f\n%s",
		mark, d.Action, d.Token, d.VenueID, d.Size, d.Confidence, d.Reason)
}

// FormatLesson 课程摘要文本。
func FormatLesson(l learn.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 课程[%s] pnl=%.4f\n", l.Outcome, l.PnL)
	for _, c := range l.Contributors {
		fmt.Fprintf(&b, "· %s=%.2f (%s)\n", c.Dimension, c.Score, c.Kind)
	}
	b.WriteString(l.Recommendation)
	return b.String()
}
