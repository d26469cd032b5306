package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 算法回测服务配置
type Config struct {
	// Web 服务配置
	Server struct {
		Port           int    `yaml:"port"`             // 监听端口，默认 8080
		SessionTTLMin  int    `yaml:"session_ttl_min"`  // 会话有效期（分钟），默认 720
		AdminUsername  string `yaml:"admin_username"`   // 初始管理员用户名，默认 admin
		AdminPassword  string `yaml:"admin_password"`   // 初始管理员密码（仅首次启动时写入）
		TrustedProxies []string `yaml:"trusted_proxies"` // 可信代理列表
	} `yaml:"server"`

	// 数据库配置（支持 SQLite、PostgreSQL、MySQL）
	Database struct {
		Type            string `yaml:"type"`              // 数据库类型: sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 数据源名称，默认 ./data/fxmesh.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数，默认100
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数，默认10
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（秒），默认3600
		LogLevel        string `yaml:"log_level"`         // 日志级别: silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 分布式锁配置（多实例部署）
	DistributedLock struct {
		Enabled    bool   `yaml:"enabled"`     // 是否启用分布式锁，默认false（单实例模式）
		Type       string `yaml:"type"`        // 锁类型: redis，默认 redis
		Prefix     string `yaml:"prefix"`      // 锁键前缀，默认 "fxmesh:lock:"
		DefaultTTL int    `yaml:"default_ttl"` // 默认锁超时（秒），默认 300
		Redis      struct {
			Addr     string `yaml:"addr"`      // Redis 地址，默认 localhost:6379
			Password string `yaml:"password"`  // Redis 密码
			DB       int    `yaml:"db"`        // Redis 数据库编号
			PoolSize int    `yaml:"pool_size"` // 连接池大小，默认10
		} `yaml:"redis"`
	} `yaml:"distributed_lock"`

	// 行情数据配置
	Market struct {
		Provider      string  `yaml:"provider"`        // 数据源: binance，默认 binance
		CacheDir      string  `yaml:"cache_dir"`       // K线缓存目录，默认 ./data/cache
		RequestsPerSec float64 `yaml:"requests_per_sec"` // 行情请求限速（次/秒），默认 5
		Binance       struct {
			APIKey    string `yaml:"api_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"binance"`
	} `yaml:"market"`

	// 回测引擎配置
	Backtest struct {
		SandboxTimeoutMS  int     `yaml:"sandbox_timeout_ms"`  // 策略脚本执行超时（毫秒），默认 5000
		PipScale          float64 `yaml:"pip_scale"`           // 点值换算系数，默认 10000（5位报价外汇）
		MarginBars        int     `yaml:"margin_bars"`         // dateTo 之后的冗余K线数量，默认 50
		ResolveWorkers    int     `yaml:"resolve_workers"`     // 平仓扫描并发数，默认 4
		MaxConcurrentRuns int     `yaml:"max_concurrent_runs"` // 最大并发回测任务数，默认 2
	} `yaml:"backtest"`

	// 实时调度配置
	Scheduler struct {
		Enabled bool `yaml:"enabled"` // 是否启用实时信号调度，默认 false
	} `yaml:"scheduler"`

	// 通知配置
	Notifications struct {
		Enabled bool `yaml:"enabled"`
		Webhook struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
			Timeout int    `yaml:"timeout"` // 超时（秒），默认 3
		} `yaml:"webhook"`
	} `yaml:"notifications"`

	// 系统配置
	System struct {
		LogLevel string `yaml:"log_level"` // 日志级别: debug, info, warn, error，默认 info
	} `yaml:"system"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回全默认配置（配置文件不存在时使用）
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults 填充默认值
func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionTTLMin <= 0 {
		c.Server.SessionTTLMin = 720
	}
	if c.Server.AdminUsername == "" {
		c.Server.AdminUsername = "admin"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data/fxmesh.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	if c.DistributedLock.Type == "" {
		c.DistributedLock.Type = "redis"
	}
	if c.DistributedLock.Prefix == "" {
		c.DistributedLock.Prefix = "fxmesh:lock:"
	}
	if c.DistributedLock.DefaultTTL <= 0 {
		c.DistributedLock.DefaultTTL = 300
	}
	if c.DistributedLock.Redis.Addr == "" {
		c.DistributedLock.Redis.Addr = "localhost:6379"
	}
	if c.DistributedLock.Redis.PoolSize <= 0 {
		c.DistributedLock.Redis.PoolSize = 10
	}

	if c.Market.Provider == "" {
		c.Market.Provider = "binance"
	}
	if c.Market.CacheDir == "" {
		c.Market.CacheDir = "./data/cache"
	}
	if c.Market.RequestsPerSec <= 0 {
		c.Market.RequestsPerSec = 5
	}

	if c.Backtest.SandboxTimeoutMS <= 0 {
		c.Backtest.SandboxTimeoutMS = 5000
	}
	if c.Backtest.PipScale <= 0 {
		c.Backtest.PipScale = 10000
	}
	if c.Backtest.MarginBars <= 0 {
		c.Backtest.MarginBars = 50
	}
	if c.Backtest.ResolveWorkers <= 0 {
		c.Backtest.ResolveWorkers = 4
	}
	if c.Backtest.MaxConcurrentRuns <= 0 {
		c.Backtest.MaxConcurrentRuns = 2
	}

	if c.Notifications.Webhook.Timeout <= 0 {
		c.Notifications.Webhook.Timeout = 3
	}

	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}

	if c.DistributedLock.Enabled && c.DistributedLock.Type != "redis" {
		return fmt.Errorf("不支持的分布式锁类型: %s", c.DistributedLock.Type)
	}

	if c.Market.Provider != "binance" {
		return fmt.Errorf("不支持的行情数据源: %s", c.Market.Provider)
	}

	if c.Notifications.Enabled && c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("Webhook 通知已启用但未配置 URL")
	}

	return nil
}

// SandboxTimeout 策略脚本执行超时
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Backtest.SandboxTimeoutMS) * time.Millisecond
}

// SessionTTL 会话有效期
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMin) * time.Minute
}
