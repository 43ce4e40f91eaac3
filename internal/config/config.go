package config

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// 配置结构体（按模块分节，保留必要字段，便于后续扩展）
type Config struct {
	App      AppConfig      `toml:"app"`
	Feed     FeedConfig     `toml:"feed"`
	Judge    JudgeConfig    `toml:"judge"`
	Decision DecisionConfig `toml:"decision"`
	Learn    LearnConfig    `toml:"learn"`
	Store    StoreConfig    `toml:"store"`
	Notify   NotifyConfig   `toml:"notify"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"` // 留空则不启动 HTTP 接口
}

type FeedConfig struct {
	Source          string   `toml:"source"` // synthetic | http
	APIURL          string   `toml:"api_url"`
	Tokens          []string `toml:"tokens"`
	Venue           string   `toml:"venue"`
	IntervalSeconds int      `toml:"interval_seconds"`
	MaxPerCycle     int      `toml:"max_per_cycle"`
	CooldownSeconds int      `toml:"cooldown_seconds"`
	RatePerSecond   float64  `toml:"rate_per_second"`
	Seed            int64    `toml:"seed"` // 合成数据随机种子，0 表示按时间取种
}

type JudgeConfig struct {
	HistorySize int `toml:"history_size"`
}

type DecisionConfig struct {
	MinSize       float64 `toml:"min_size"`
	MaxSize       float64 `toml:"max_size"`
	MaxConfidence float64 `toml:"max_confidence"` // 0 表示调用方不额外设上限
	HistorySize   int     `toml:"history_size"`
}

type LearnConfig struct {
	LearningRate    float64 `toml:"learning_rate"`
	SignificancePnL float64 `toml:"significance_pnl"`
	BreakevenBand   float64 `toml:"breakeven_band"`
}

type StoreConfig struct {
	Backend string `toml:"backend"` // file | sqlite | bolt | postgres | noop | memory
	Path    string `toml:"path"`    // file/sqlite/bolt 路径
	DSN     string `toml:"dsn"`     // postgres 连接串
}

type NotifyConfig struct {
	Telegram struct {
		Enabled  bool   `toml:"enabled"`
		BotToken string `toml:"bot_token"`
		ChatID   string `toml:"chat_id"`
	} `toml:"telegram"`
}

type ScheduleConfig struct {
	ReportCron string `toml:"report_cron"` // 会话报告周期，标准 cron 表达式或 @every
}

// Load 读取并解析 TOML 配置文件，并设置缺省值与基本校验
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 TOML 失败: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 环境变量覆盖：密钥类字段允许留在 .env 而不进配置文件
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CYNIC_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("CYNIC_TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("CYNIC_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
}

// 默认值设置
func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.Source == "" {
		c.Feed.Source = "synthetic"
	}
	if c.Feed.Venue == "" {
		c.Feed.Venue = "raydium"
	}
	if c.Feed.IntervalSeconds <= 0 {
		c.Feed.IntervalSeconds = 15
	}
	if c.Feed.MaxPerCycle <= 0 {
		c.Feed.MaxPerCycle = 3
	}
	if c.Feed.CooldownSeconds <= 0 {
		c.Feed.CooldownSeconds = 180
	} // 3分钟冷却
	if c.Feed.RatePerSecond <= 0 {
		c.Feed.RatePerSecond = 2
	}
	if c.Judge.HistorySize <= 0 {
		c.Judge.HistorySize = 50
	}
	if c.Decision.MinSize <= 0 {
		c.Decision.MinSize = 0.01
	}
	if c.Decision.MaxSize <= 0 {
		c.Decision.MaxSize = 0.10
	}
	if c.Decision.HistorySize <= 0 {
		c.Decision.HistorySize = 50
	}
	if c.Learn.LearningRate <= 0 {
		c.Learn.LearningRate = 0.10
	}
	if c.Learn.SignificancePnL <= 0 {
		c.Learn.SignificancePnL = 0.02
	}
	if c.Learn.BreakevenBand <= 0 {
		c.Learn.BreakevenBand = 0.01
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = "data/cynic.db"
		case "bolt":
			c.Store.Path = "data/cynic.bolt"
		default:
			c.Store.Path = "data/learner_state.json"
		}
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "@every 10m"
	}
}

// 基础校验
func validate(c *Config) error {
	switch strings.ToLower(c.Feed.Source) {
	case "synthetic":
		if len(c.Feed.Tokens) == 0 {
			return fmt.Errorf("feed.tokens 不能为空（当 source=synthetic 时）")
		}
	case "http":
		if strings.TrimSpace(c.Feed.APIURL) == "" {
			return fmt.Errorf("feed.api_url 不能为空（当 source=http 时）")
		}
	default:
		return fmt.Errorf("非法 feed.source: %s", c.Feed.Source)
	}
	if c.Decision.MinSize >= c.Decision.MaxSize {
		return fmt.Errorf("decision.min_size 必须小于 max_size")
	}
	if c.Decision.MaxSize > 1 {
		return fmt.Errorf("decision.max_size 不能超过 1")
	}
	if c.Decision.MaxConfidence < 0 {
		return fmt.Errorf("decision.max_confidence 不能为负")
	}
	if c.Learn.LearningRate > 1 {
		return fmt.Errorf("learn.learning_rate 需在 (0,1]")
	}
	switch strings.ToLower(c.Store.Backend) {
	case "file", "sqlite", "bolt", "memory", "noop":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn 不能为空（当 backend=postgres 时）")
		}
	default:
		return fmt.Errorf("非法 store.backend: %s", c.Store.Backend)
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("已启用 Telegram 通知，请提供 bot_token 与 chat_id")
		}
	}
	return nil
}
