package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/app"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/config"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
)

// 入口程序：
// 1) 加载 TOML 配置（支持 .env 覆盖密钥类字段）
// 2) 组装闭环应用（判断→决策→执行→结算→学习）
// 3) 监听退出信号，优雅关停
func main() {
	// .env 不存在则静默依赖真实环境变量
	_ = godotenv.Load()

	cfgPath := os.Getenv("CYNIC_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，机会源=%s，存储=%s）", cfg.App.Env, cfg.Feed.Source, cfg.Store.Backend)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Infof("收到退出信号，正在关停...")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("CYNIC 已退出")
}
