package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfigDefaults 测试默认值填充
func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
database:
  type: sqlite
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("默认端口应为 8080, 实际 %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "./data/fxmesh.db" {
		t.Errorf("默认 DSN 错误: %s", cfg.Database.DSN)
	}
	if cfg.Backtest.PipScale != 10000 {
		t.Errorf("默认点值系数应为 10000, 实际 %v", cfg.Backtest.PipScale)
	}
	if cfg.Backtest.SandboxTimeoutMS != 5000 {
		t.Errorf("默认沙箱超时应为 5000ms, 实际 %d", cfg.Backtest.SandboxTimeoutMS)
	}
	if cfg.SandboxTimeout() != 5*time.Second {
		t.Errorf("沙箱超时换算错误: %v", cfg.SandboxTimeout())
	}
	if cfg.Market.Provider != "binance" {
		t.Errorf("默认行情数据源应为 binance, 实际 %s", cfg.Market.Provider)
	}
	if cfg.DistributedLock.Prefix != "fxmesh:lock:" {
		t.Errorf("默认锁前缀错误: %s", cfg.DistributedLock.Prefix)
	}
}

// TestLoadConfigOverrides 测试配置覆盖默认值
func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
database:
  type: postgres
  dsn: "host=localhost user=fx dbname=fxmesh"
backtest:
  sandbox_timeout_ms: 1000
  pip_scale: 100
  resolve_workers: 8
system:
  log_level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("端口应为 9090, 实际 %d", cfg.Server.Port)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("数据库类型应为 postgres, 实际 %s", cfg.Database.Type)
	}
	if cfg.Backtest.PipScale != 100 {
		t.Errorf("点值系数应为 100, 实际 %v", cfg.Backtest.PipScale)
	}
	if cfg.Backtest.ResolveWorkers != 8 {
		t.Errorf("平仓扫描并发数应为 8, 实际 %d", cfg.Backtest.ResolveWorkers)
	}
	if cfg.System.LogLevel != "debug" {
		t.Errorf("日志级别应为 debug, 实际 %s", cfg.System.LogLevel)
	}
}

// TestValidateRejectsBadConfig 测试非法配置被拒绝
func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"非法数据库类型", "database:\n  type: mongodb\n"},
		{"非法行情数据源", "market:\n  provider: oanda\n"},
		{"Webhook缺URL", "notifications:\n  enabled: true\n  webhook:\n    enabled: true\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.yaml)
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("非法配置应返回错误")
			}
		})
	}
}

// writeTempConfig 写入临时配置文件
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
