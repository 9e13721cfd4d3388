package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/payment/xunhu"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Polling    PollingConfig    `mapstructure:"polling"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Security   SecurityConfig   `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     string `mapstructure:"port"`
	Mode                     string `mapstructure:"mode"` // debug / release
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ReadTimeoutSeconds       int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds      int    `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds       int    `mapstructure:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `mapstructure:"shutdown_timeout_seconds"`
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// GatewayConfig 支付网关凭据，进程内只读
type GatewayConfig struct {
	AppID                  string `mapstructure:"appid"`
	AppSecret              string `mapstructure:"app_secret"`
	BaseURL                string `mapstructure:"base_url"`
	CreatePath             string `mapstructure:"create_path"`
	QueryURL               string `mapstructure:"query_url"`
	NotifyURL              string `mapstructure:"notify_url"`
	ReturnURL              string `mapstructure:"return_url"`
	CallbackURL            string `mapstructure:"callback_url"`
	Plugins                string `mapstructure:"plugins"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	CallbackMaxSkewSeconds int    `mapstructure:"callback_max_skew_seconds"` // 0 表示不校验回调时间戳
}

// String 输出时隐藏密钥
func (c GatewayConfig) String() string {
	return fmt.Sprintf("GatewayConfig{appid=%s base_url=%s query_url=%s notify_url=%s app_secret=***}",
		c.AppID, c.BaseURL, c.QueryURL, c.NotifyURL)
}

// ToXunhuConfig 转换为网关客户端配置
func (c GatewayConfig) ToXunhuConfig() xunhu.Config {
	return xunhu.Config{
		AppID:       c.AppID,
		AppSecret:   c.AppSecret,
		BaseURL:     c.BaseURL,
		CreatePath:  c.CreatePath,
		QueryURL:    c.QueryURL,
		NotifyURL:   c.NotifyURL,
		ReturnURL:   c.ReturnURL,
		CallbackURL: c.CallbackURL,
		Plugins:     c.Plugins,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// CallbackMaxSkew 回调时间戳允许的最大偏差
func (c GatewayConfig) CallbackMaxSkew() time.Duration {
	if c.CallbackMaxSkewSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CallbackMaxSkewSeconds) * time.Second
}

// PollingConfig 轮询会话配置
type PollingConfig struct {
	IntervalSeconds    int `mapstructure:"interval_seconds"`
	MaxDurationSeconds int `mapstructure:"max_duration_seconds"`
}

// Interval 轮询间隔
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MaxDuration 轮询最长时长
func (c PollingConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

// ReconcileConfig 状态存储配置
type ReconcileConfig struct {
	Backend                 string `mapstructure:"backend"` // memory / redis
	TerminalRetentionMinute int    `mapstructure:"terminal_retention_minutes"`
	PendingRetentionMinute  int    `mapstructure:"pending_retention_minutes"`
	SweepIntervalSeconds    int    `mapstructure:"sweep_interval_seconds"`
	ReplayTTLMinutes        int    `mapstructure:"replay_ttl_minutes"`
}

// TerminalRetention 终态记录保留时长
func (c ReconcileConfig) TerminalRetention() time.Duration {
	return time.Duration(c.TerminalRetentionMinute) * time.Minute
}

// PendingRetention 非终态记录保留时长
func (c ReconcileConfig) PendingRetention() time.Duration {
	return time.Duration(c.PendingRetentionMinute) * time.Minute
}

// SweepInterval 内存存储清理间隔
func (c ReconcileConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ReplayTTL 回调随机串去重保留时长
func (c ReconcileConfig) ReplayTTL() time.Duration {
	return time.Duration(c.ReplayTTLMinutes) * time.Minute
}

// validateRetention 终态记录必须比订单仍可能被查询或回调的任一窗口活得更久，0 表示永久保留
func (c ReconcileConfig) validateRetention(settlement SettlementConfig, queue QueueConfig) error {
	terminal := c.TerminalRetention()
	if terminal <= 0 {
		return nil
	}
	if c.PendingRetention() <= 0 {
		return fmt.Errorf("reconcile.terminal_retention_minutes=%d 必须为 0：非终态记录永久保留", c.TerminalRetentionMinute)
	}
	floors := []struct {
		key   string
		value time.Duration
	}{
		{"reconcile.pending_retention_minutes", c.PendingRetention()},
		{"reconcile.replay_ttl_minutes", c.ReplayTTL()},
		{"settlement.order_cache_minutes", time.Duration(settlement.OrderCacheMinutes) * time.Minute},
		{"queue.reconcile_delay_seconds", queue.ReconcileDelay()},
	}
	for _, floor := range floors {
		if terminal < floor.value {
			return fmt.Errorf("reconcile.terminal_retention_minutes=%d 小于 %s (%s)", c.TerminalRetentionMinute, floor.key, floor.value)
		}
	}
	return nil
}

// SettlementConfig 支付成功事件下游配置
type SettlementConfig struct {
	ForwardURL            string `mapstructure:"forward_url"`
	ForwardTimeoutSeconds int    `mapstructure:"forward_timeout_seconds"`
	OrderCacheMinutes     int    `mapstructure:"order_cache_minutes"`
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 审计数据库配置
type DatabaseConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Driver  string             `mapstructure:"driver"` // sqlite / postgres
	DSN     string             `mapstructure:"dsn"`
	Pool    DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled               bool           `mapstructure:"enabled"`
	Host                  string         `mapstructure:"host"`
	Port                  int            `mapstructure:"port"`
	Password              string         `mapstructure:"password"`
	DB                    int            `mapstructure:"db"`
	Concurrency           int            `mapstructure:"concurrency"`
	Queues                map[string]int `mapstructure:"queues"`
	ReconcileDelaySeconds int            `mapstructure:"reconcile_delay_seconds"`
}

// ReconcileDelay 下单后服务端兜底查单的延迟
func (c QueueConfig) ReconcileDelay() time.Duration {
	return time.Duration(c.ReconcileDelaySeconds) * time.Second
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	StatusRateLimit RateLimitConfig `mapstructure:"status_rate_limit"`
	CreateRateLimit RateLimitConfig `mapstructure:"create_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹
	SetDefaults(v)

	// 环境变量支持，例如 gateway.app_secret -> GATEWAY_APP_SECRET
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Unmarshal 从 viper 实例解析配置
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Reconcile.validateRetention(cfg.Settlement, cfg.Queue); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "hupay.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("gateway.appid", "")
	v.SetDefault("gateway.app_secret", "")
	v.SetDefault("gateway.base_url", "https://api.xunhupay.com/payment")
	v.SetDefault("gateway.create_path", "/do")
	v.SetDefault("gateway.query_url", "")
	v.SetDefault("gateway.notify_url", "")
	v.SetDefault("gateway.return_url", "")
	v.SetDefault("gateway.callback_url", "")
	v.SetDefault("gateway.plugins", "hupay-bridge")
	v.SetDefault("gateway.timeout_seconds", 10)
	v.SetDefault("gateway.callback_max_skew_seconds", 0)

	v.SetDefault("polling.interval_seconds", 5)
	v.SetDefault("polling.max_duration_seconds", 300)

	v.SetDefault("reconcile.backend", "memory")
	v.SetDefault("reconcile.terminal_retention_minutes", 10080)
	v.SetDefault("reconcile.pending_retention_minutes", 1440)
	v.SetDefault("reconcile.sweep_interval_seconds", 60)
	v.SetDefault("reconcile.replay_ttl_minutes", 1440)

	v.SetDefault("settlement.forward_url", "")
	v.SetDefault("settlement.forward_timeout_seconds", 5)
	v.SetDefault("settlement.order_cache_minutes", 30)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/hupay.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "hp")

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("queue.reconcile_delay_seconds", 600)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Accept",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("security.status_rate_limit.window_seconds", 60)
	v.SetDefault("security.status_rate_limit.max_requests", 120)
	v.SetDefault("security.create_rate_limit.window_seconds", 60)
	v.SetDefault("security.create_rate_limit.max_requests", 10)
}
