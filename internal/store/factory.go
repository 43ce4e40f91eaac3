package store

import (
	"fmt"
	"strings"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/config"
)

// NewGateway 按配置选择持久化后端。
func NewGateway(cfg config.StoreConfig) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		return NewFileGateway(cfg.Path)
	case "sqlite":
		return NewSQLiteGateway(cfg.Path)
	case "bolt":
		return NewBoltGateway(cfg.Path)
	case "postgres":
		return NewPostgresGateway(cfg.DSN)
	case "memory":
		return NewMemoryGateway(), nil
	case "noop":
		return NoopGateway{}, nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.Backend)
	}
}
