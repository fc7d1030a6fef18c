package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Security   SecurityConfig   `yaml:"security"`
	Automation AutomationConfig `yaml:"automation"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxAge     int    `yaml:"max_age"`     // days
	MaxBackups int    `yaml:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress"`    // compress backup files
}

type MonitoringConfig struct {
	Enabled      bool                     `yaml:"enabled"`
	MetricsPath  string                   `yaml:"metrics_path"`
	Performance  PerformanceMonitorConfig `yaml:"performance"`
	HealthChecks HealthChecksConfig       `yaml:"health_checks"`
	Tracing      TracingConfig            `yaml:"tracing"`
}

type PerformanceMonitorConfig struct {
	SlowQueryThreshold   time.Duration `yaml:"slow_query_threshold"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
}

type HealthChecksConfig struct {
	Database bool `yaml:"database"`
	Webhook  bool `yaml:"webhook"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP gRPC 端点，例如 http://otel-collector:4317 或 0.0.0.0:4317
	Insecure    bool    `yaml:"insecure"`     // 是否使用明文（本地/开发）
	SampleRatio float64 `yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `yaml:"service_name"` // 自定义服务名，缺省使用 "fleetfix"
}

type SecurityConfig struct {
	CORS         CORSConfig         `yaml:"cors"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
	RBAC         RBACConfig         `yaml:"rbac"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool                  `yaml:"enabled"`
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	Burst             int                   `yaml:"burst"`
	KeyHeader         string                `yaml:"key_header"` // 按请求头限流（如 X-Forwarded-For），空则按 ClientIP
	WhitelistKeys     []string              `yaml:"whitelist_keys"`
	WhitelistIPs      []string              `yaml:"whitelist_ips"`
	Paths             []PathRateLimitConfig `yaml:"paths"`
}

type PathRateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Prefix            string `yaml:"prefix"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
}

// RBACConfig 基于角色的权限展开。未启用时按内置默认角色映射。
type RBACConfig struct {
	Enabled bool                `yaml:"enabled"`
	Roles   map[string][]string `yaml:"roles"` // role -> permissions
}

// AutomationConfig 自动化引擎与升级扫描配置
type AutomationConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`    // 定时扫描间隔（SweepCron 为空时生效）
	SweepCron        string        `yaml:"sweep_cron"`        // cron 表达式，优先于 SweepInterval
	SweepWorkers     int           `yaml:"sweep_workers"`     // 扫描并发数
	DispatchInterval time.Duration `yaml:"dispatch_interval"` // 通知派发间隔
}

// NotifyConfig 外部 webhook 通知配置
type NotifyConfig struct {
	Enabled            bool          `yaml:"enabled"`
	WebhookURL         string        `yaml:"webhook_url"`
	AuthToken          string        `yaml:"auth_token"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures"` // 0 = 熔断默认阈值
	BreakerCoolOff     time.Duration `yaml:"breaker_cool_off"`     // 0 = 熔断默认冷却
}

func Load() *Config {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}
	return &config
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "fleetfix",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		JWT: JWTConfig{
			Secret:    "default-secret-key",
			ExpiresIn: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "both",
			FilePath:   "./logs/fleetfix.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Performance: PerformanceMonitorConfig{
				SlowQueryThreshold:   1 * time.Second,
				EnableRequestLogging: true,
			},
			HealthChecks: HealthChecksConfig{
				Database: true,
				Webhook:  false,
			},
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "fleetfix",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
				AllowedHeaders: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Automation: AutomationConfig{
			SweepInterval:    5 * time.Minute,
			SweepWorkers:     4,
			DispatchInterval: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:    false,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
	}
}
