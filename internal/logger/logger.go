package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// 中文说明：
// 轻量日志封装：底层为 zerolog 控制台输出，对外只暴露级别设置与
// printf 风格函数，便于全局调用并减少刷屏。

var root = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.DateTime,
	NoColor:    true,
}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

func SetLevel(s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		root = root.Level(zerolog.DebugLevel)
	case "info":
		root = root.Level(zerolog.InfoLevel)
	case "warn", "warning":
		root = root.Level(zerolog.WarnLevel)
	case "error":
		root = root.Level(zerolog.ErrorLevel)
	default:
		root = root.Level(zerolog.InfoLevel)
	}
}

func Debugf(format string, v ...any) {
	root.Debug().Msgf(format, v...)
}
func Infof(format string, v ...any) {
	root.Info().Msgf(format, v...)
}
func Warnf(format string, v ...any) {
	root.Warn().Msgf(format, v...)
}
func Errorf(format string, v ...any) {
	root.Error().Msgf(format, v...)
}
