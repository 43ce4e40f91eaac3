package store

import (
	"context"
	"time"
)

// 中文说明：
// 学习器状态的持久化模型与网关接口。快照在每次 lesson 后整体写入，
// 读取时由调用方校验版本与时效（过期或版本不符 → 回到默认值）。

// CurrentVersion 快照版本；不符的快照整体忽略
const CurrentVersion = 1

// StalenessWindow 快照时效窗口：超过 30 天按过期处理
const StalenessWindow = 30 * 24 * time.Hour

// ReliabilityCounters 每动作的成败计数（Beta 先验，恒 ≥1）
type ReliabilityCounters struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Metrics 学习器聚合指标
type Metrics struct {
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"winRate"`
	TotalPnL       float64 `json:"totalPnL"`
	LessonsLearned int     `json:"lessonsLearned"`
}

// State 学习器状态快照（持久化 JSON 模型）
type State struct {
	Version              int                            `json:"version"`
	UpdatedAt            int64                          `json:"updatedAt"` // epoch 毫秒
	DimensionAdjustments map[string]float64             `json:"dimensionAdjustments"`
	ActionReliability    map[string]ReliabilityCounters `json:"actionReliability"`
	Metrics              Metrics                        `json:"metrics"`
}

// Valid 校验版本与时效。
func (s *State) Valid(now time.Time) bool {
	if s == nil || s.Version != CurrentVersion {
		return false
	}
	updated := time.UnixMilli(s.UpdatedAt)
	return now.Sub(updated) <= StalenessWindow
}

// Gateway 持久化网关。Load 无快照时返回 (nil, nil)。
type Gateway interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context) (*State, error)
	Close() error
}

// Journal 决策与课程的流水记录（可选能力，部分后端实现）。
type Journal interface {
	AppendDecision(ctx context.Context, rec DecisionRecord) error
	AppendLesson(ctx context.Context, rec LessonRecord) error
}

// JournalReader 流水回查（最新在前），供 API 层展示历史。
type JournalReader interface {
	RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
	RecentLessons(ctx context.Context, limit int) ([]LessonRecord, error)
}

// DecisionRecord 决策流水行
type DecisionRecord struct {
	ID         string  `json:"id"`
	JudgmentID string  `json:"judgment_id"`
	Token      string  `json:"token"`
	VenueID    string  `json:"venue_id"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"`
	QScore     int     `json:"q_score"`
	Verdict    string  `json:"verdict"`
	Reason     string  `json:"reason"`
	At         int64   `json:"at"` // epoch 毫秒
}

// LessonRecord 课程流水行
type LessonRecord struct {
	ID           string  `json:"id"`
	DecisionID   string  `json:"decision_id"`
	Outcome      string  `json:"outcome"`
	PnL          float64 `json:"pnl"`
	Contributors string  `json:"contributors"` // JSON 数组
	At           int64   `json:"at"`
}
