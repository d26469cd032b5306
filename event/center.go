package event

import (
	"sync"

	"fxmesh/logger"
)

// NotificationService 通知服务接口
type NotificationService interface {
	Send(event *Event)
}

// Listener 事件监听者（如 WebSocket 推送）
type Listener func(event *Event)

// EventCenterConfig 事件中心配置
type EventCenterConfig struct {
	Enabled bool
}

// EventCenter 事件中心：消费事件总线，写日志、触发通知、
// 广播给注册的监听者。
type EventCenter struct {
	eventBus *EventBus
	notifier NotificationService
	config   *EventCenterConfig

	mu        sync.RWMutex
	listeners []Listener

	done chan struct{}
	wg   sync.WaitGroup
}

// NewEventCenter 创建事件中心
func NewEventCenter(eventBus *EventBus, notifier NotificationService, config *EventCenterConfig) *EventCenter {
	return &EventCenter{
		eventBus: eventBus,
		notifier: notifier,
		config:   config,
		done:     make(chan struct{}),
	}
}

// AddListener 注册事件监听者
func (ec *EventCenter) AddListener(l Listener) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.listeners = append(ec.listeners, l)
}

// Start 启动事件中心
func (ec *EventCenter) Start() error {
	if !ec.config.Enabled {
		logger.Info("⏸️ 事件中心未启用")
		return nil
	}

	logger.Info("🚀 启动事件中心...")

	ec.wg.Add(1)
	go ec.processEvents()

	logger.Info("✅ 事件中心已启动")
	return nil
}

// Stop 停止事件中心
func (ec *EventCenter) Stop() {
	logger.Info("🛑 停止事件中心...")
	close(ec.done)
	ec.wg.Wait()
	logger.Info("✅ 事件中心已停止")
}

// processEvents 处理事件
func (ec *EventCenter) processEvents() {
	defer ec.wg.Done()

	eventCh := ec.eventBus.Subscribe()

	for {
		select {
		case <-ec.done:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			ec.handleEvent(event)
		}
	}
}

// handleEvent 处理单个事件
func (ec *EventCenter) handleEvent(event *Event) {
	if event == nil {
		return
	}

	switch event.Type {
	case EventTypeRunFailed:
		logger.Warn("⚠️ 事件: %s %v", event.Type, event.Data)
	default:
		logger.Debug("📊 事件: %s %v", event.Type, event.Data)
	}

	if ec.notifier != nil && ec.shouldNotify(event.Type) {
		ec.notifier.Send(event)
	}

	ec.mu.RLock()
	listeners := ec.listeners
	ec.mu.RUnlock()
	for _, l := range listeners {
		l(event)
	}
}

// shouldNotify 判断事件是否触发外部通知
func (ec *EventCenter) shouldNotify(t EventType) bool {
	switch t {
	case EventTypeRunFailed, EventTypeSignalGenerated:
		return true
	default:
		return false
	}
}
