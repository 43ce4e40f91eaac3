package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/config"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/schedule"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/transport/web"
)

// App 负责应用级编排：加载配置→初始化依赖→启动闭环与周边服务。
type App struct {
	cfg      *config.Config
	loop     *LoopService
	web      *web.Server
	reporter *schedule.Reporter
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动闭环循环与周边服务，任一退出即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.loop == nil {
		return fmt.Errorf("loop service not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.web != nil {
		group.Go(func() error {
			if err := a.web.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("HTTP 接口停止: %v", err)
			}
			return nil
		})
	}

	if a.reporter != nil {
		a.reporter.Start()
		defer a.reporter.Stop()
	}

	group.Go(func() error {
		defer a.loop.Close()
		return a.loop.Run(ctx)
	})

	return group.Wait()
}
