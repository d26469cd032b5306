package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fxmesh/logger"
)

// Watcher 配置文件监控器：配置文件变更时重新加载并下发新配置
type Watcher struct {
	configPath  string
	watcher     *fsnotify.Watcher
	mu          sync.RWMutex
	isWatching  bool
	lastModTime time.Time
	onReload    func(*Config)
}

// NewWatcher 创建配置监控器
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %v", err)
	}

	configDir := filepath.Dir(configPath)
	if configDir == "" || configDir == "." {
		configDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("获取当前目录失败: %v", err)
		}
		configPath = filepath.Join(configDir, filepath.Base(configPath))
	}

	var lastModTime time.Time
	if info, err := os.Stat(configPath); err == nil {
		lastModTime = info.ModTime()
	}

	return &Watcher{
		configPath:  configPath,
		watcher:     watcher,
		lastModTime: lastModTime,
		onReload:    onReload,
	}, nil
}

// Start 开始监控配置文件
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return fmt.Errorf("配置监控器已经在运行")
	}

	configDir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(configDir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("添加监控目录失败: %v", err)
	}

	w.isWatching = true
	w.mu.Unlock()

	go w.watchLoop(ctx)

	logger.Info("👀 配置监控器已启动: %s", w.configPath)
	return nil
}

// watchLoop 监控循环
func (w *Watcher) watchLoop(ctx context.Context) {
	// 编辑器保存通常触发多个事件，用去抖定时器合并
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("配置监控错误: %v", err)
		}
	}
}

// reload 重新加载配置并下发
func (w *Watcher) reload() {
	info, err := os.Stat(w.configPath)
	if err != nil {
		logger.Error("读取配置文件信息失败: %v", err)
		return
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastModTime) {
		w.mu.Unlock()
		return
	}
	w.lastModTime = info.ModTime()
	w.mu.Unlock()

	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		logger.Error("❌ 配置热加载失败，保留旧配置: %v", err)
		return
	}

	logger.Info("🔄 配置已重新加载: %s", w.configPath)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop 停止监控
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isWatching {
		return
	}
	w.isWatching = false
	w.watcher.Close()
}
