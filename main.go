package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxmesh/backtest"
	"fxmesh/config"
	"fxmesh/database"
	"fxmesh/event"
	"fxmesh/lock"
	"fxmesh/logger"
	"fxmesh/market"
	"fxmesh/metrics"
	"fxmesh/notify"
	"fxmesh/sandbox"
	"fxmesh/scheduler"
	"fxmesh/web"
)

// Version 版本号
var Version = "1.2.0"

func main() {
	// 检查版本参数
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("FxMesh Backtest Service\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 解析调试参数（-debug / --debug）
	debugMode := false
	filteredArgs := []string{os.Args[0]}
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-debug", "--debug":
			debugMode = true
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	os.Args = filteredArgs

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	var cfg *config.Config
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		logger.Info("ℹ️ 配置文件 %s 不存在, 使用默认配置", configPath)
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			logger.Fatalf("❌ 加载配置失败: %v", err)
		}
	}

	if debugMode {
		cfg.System.LogLevel = "debug"
	}
	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)

	if err := logger.InitWebLogger(); err != nil {
		logger.Warn("⚠️ 初始化Web访问日志失败: %v", err)
	}

	logger.Info("🚀 FxMesh 回测服务启动...")
	logger.Info("📦 版本号: %s", Version)
	logger.Info("日志级别设置为: %s", logLevel.String())

	// 1. 数据库
	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatalf("❌ 初始化数据库失败: %v", err)
	}
	logger.Info("✅ 数据库已连接: %s", cfg.Database.Type)

	// 2. 行情数据源
	var provider market.Provider
	switch cfg.Market.Provider {
	case "binance":
		provider = market.NewBinanceProvider(&market.BinanceConfig{
			APIKey:         cfg.Market.Binance.APIKey,
			SecretKey:      cfg.Market.Binance.SecretKey,
			CacheDir:       cfg.Market.CacheDir,
			RequestsPerSec: cfg.Market.RequestsPerSec,
		})
		logger.Info("✅ 行情数据源: binance (缓存目录 %s)", cfg.Market.CacheDir)
	default:
		logger.Fatalf("❌ 不支持的行情数据源: %s", cfg.Market.Provider)
	}

	// 3. 策略沙箱
	executor := sandbox.NewExecutor(cfg.SandboxTimeout())
	logger.Info("✅ 策略沙箱就绪 (超时 %v)", cfg.SandboxTimeout())

	// 4. 事件总线与事件中心
	eventBus := event.NewEventBus(1000)
	notifier := notify.NewNotificationService(cfg)
	eventCenter := event.NewEventCenter(eventBus, notifier, &event.EventCenterConfig{Enabled: true})
	eventCenter.AddListener(web.BroadcastEvent)
	if err := eventCenter.Start(); err != nil {
		logger.Fatalf("❌ 启动事件中心失败: %v", err)
	}

	// 5. 分布式锁
	dlock, err := lock.NewDistributedLock(&lock.Config{
		Enabled:    cfg.DistributedLock.Enabled,
		Type:       cfg.DistributedLock.Type,
		Prefix:     cfg.DistributedLock.Prefix,
		DefaultTTL: time.Duration(cfg.DistributedLock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.DistributedLock.Redis.Addr,
			Password: cfg.DistributedLock.Redis.Password,
			DB:       cfg.DistributedLock.Redis.DB,
			PoolSize: cfg.DistributedLock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Fatalf("❌ 初始化分布式锁失败: %v", err)
	}
	if cfg.DistributedLock.Enabled {
		logger.Info("✅ 分布式锁已启用: %s", cfg.DistributedLock.Type)
	}

	// 6. 回测运行器
	runner := backtest.NewRunner(db, provider, executor, eventBus, &backtest.RunnerConfig{
		PipScale:          cfg.Backtest.PipScale,
		MarginBars:        cfg.Backtest.MarginBars,
		ResolveWorkers:    cfg.Backtest.ResolveWorkers,
		MaxConcurrentRuns: cfg.Backtest.MaxConcurrentRuns,
	})

	// 7. 实时信号调度器
	dispatcher := notify.NewDispatcher(time.Duration(cfg.Notifications.Webhook.Timeout) * time.Second)
	sched := scheduler.NewScheduler(db, provider, executor, dispatcher, eventBus, dlock, &scheduler.Config{
		Enabled: cfg.Scheduler.Enabled,
	})
	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			logger.Fatalf("❌ 启动调度器失败: %v", err)
		}
	} else {
		logger.Info("⏸️ 实时调度器未启用")
	}

	// 8. 系统指标采集
	collector := metrics.NewSystemMetricsCollector(30 * time.Second)
	collector.Start()

	// 9. Web 服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	web.SetDatabase(db)
	web.SetRunner(runner)
	web.SetConfig(cfg)
	webServer := web.NewWebServer(cfg)
	if err := webServer.Start(ctx); err != nil {
		logger.Fatalf("❌ 启动Web服务器失败: %v", err)
	}

	// 10. 配置热重载（目前仅支持日志级别）
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.SetLevel(logger.ParseLogLevel(newCfg.System.LogLevel))
		logger.Info("🔄 配置已重载, 日志级别: %s", newCfg.System.LogLevel)
	})
	if err != nil {
		logger.Warn("⚠️ 配置监听初始化失败: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 配置监听启动失败: %v", err)
	}

	eventBus.Publish(&event.Event{
		Type: event.EventTypeSystemStart,
		Data: map[string]interface{}{"version": Version},
	})
	logger.Info("✅ FxMesh 启动完成, 监听端口 %d", cfg.Server.Port)

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("🛑 收到信号 %v, 开始优雅关闭...", sig)

	eventBus.Publish(&event.Event{Type: event.EventTypeSystemStop})

	cancel()
	sched.Stop()
	logger.Info("⏳ 等待运行中的回测结束...")
	runner.Wait()
	collector.Stop()
	eventCenter.Stop()
	eventBus.Close()
	if err := dlock.Close(); err != nil {
		logger.Warn("⚠️ 关闭分布式锁失败: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("⚠️ 关闭数据库失败: %v", err)
	}
	logger.Info("✅ FxMesh 已退出")
	logger.Close()
}
