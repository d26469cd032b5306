package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fxmesh/config"
	"fxmesh/event"
	"fxmesh/metrics"
)

// WebhookNotifier 全局 Webhook 通知器（系统事件推送）
type WebhookNotifier struct {
	url        string
	dispatcher *Dispatcher
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(cfg *config.Config) (*WebhookNotifier, error) {
	if cfg.Notifications.Webhook.URL == "" {
		return nil, fmt.Errorf("Webhook URL 未配置")
	}

	timeout := time.Duration(cfg.Notifications.Webhook.Timeout) * time.Second
	return &WebhookNotifier{
		url:        cfg.Notifications.Webhook.URL,
		dispatcher: NewDispatcher(timeout),
	}, nil
}

// Name 返回通知器名称
func (wn *WebhookNotifier) Name() string {
	return "Webhook"
}

// Send 发送事件通知
func (wn *WebhookNotifier) Send(evt *event.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), wn.dispatcher.timeout)
	defer cancel()

	return wn.dispatcher.Dispatch(ctx, wn.url, map[string]interface{}{
		"type":      string(evt.Type),
		"timestamp": evt.Timestamp.Format(time.RFC3339),
		"data":      evt.Data,
	})
}

// Dispatcher 按目标地址投递 JSON 载荷，订阅信号的下发也走这里
type Dispatcher struct {
	timeout time.Duration
	client  *http.Client
}

// NewDispatcher 创建投递器
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Dispatch 投递载荷到指定地址，非 2xx 响应视为失败
func (d *Dispatcher) Dispatch(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.GetPrometheusMetrics().RecordSignalDispatch(false)
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.GetPrometheusMetrics().RecordSignalDispatch(false)
		return fmt.Errorf("Webhook 返回错误状态码: %d", resp.StatusCode)
	}

	metrics.GetPrometheusMetrics().RecordSignalDispatch(true)
	return nil
}
