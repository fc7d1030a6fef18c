package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.JWT.Secret == "" {
		t.Error("expected JWT.Secret to be set")
	}

	// 验证默认值
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
	// 注意：RBAC默认未启用，所以不检查Enabled状态
}

func TestConfig_DatabaseSettings(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Database.MaxOpenConns == 0 {
		t.Error("expected MaxOpenConns to be set")
	}
	if cfg.Database.MaxIdleConns == 0 {
		t.Error("expected MaxIdleConns to be set")
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		t.Error("expected ConnMaxLifetime to be set")
	}
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS enabled by default")
	}
	if !cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting enabled by default")
	}
	// 注意：RBAC默认未启用，只检查CORS和RateLimiting
}

func TestConfig_AutomationDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Automation.SweepInterval == 0 {
		t.Error("expected sweep interval to be set")
	}
	if cfg.Automation.SweepWorkers == 0 {
		t.Error("expected sweep workers to be set")
	}
	if cfg.Automation.DispatchInterval == 0 {
		t.Error("expected dispatch interval to be set")
	}
	if cfg.Automation.SweepCron != "" {
		t.Error("sweep cron should be empty by default, interval scheduling wins")
	}
}

func TestConfig_NotifyDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Notify.Enabled {
		t.Error("webhook notify should be disabled by default")
	}
	if cfg.Notify.Timeout == 0 {
		t.Error("expected notify timeout to be set")
	}
	if cfg.Notify.MaxRetries == 0 {
		t.Error("expected notify max retries to be set")
	}
}

func TestConfig_RBACRoles(t *testing.T) {
	cfg := GetDefaultConfig()

	// 注意：RBAC默认未启用，所以Roles可能为空
	if cfg.Security.RBAC.Enabled && len(cfg.Security.RBAC.Roles) == 0 {
		t.Error("enabled RBAC must carry role mappings")
	}
}

func TestConfig_RateLimiting(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Security.RateLimiting.Enabled == false {
		t.Error("expected rate limiting to be enabled")
	}
	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected requests per minute to be set")
	}
}

func TestConfig_Monitoring(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Monitoring.Enabled == false {
		t.Error("expected monitoring to be enabled")
	}
}

func TestConfig_CORS(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Security.CORS.Enabled == false {
		t.Error("expected CORS to be enabled")
	}
	if len(cfg.Security.CORS.AllowedOrigins) == 0 {
		t.Error("expected allowed origins to be set")
	}
	if len(cfg.Security.CORS.AllowedMethods) == 0 {
		t.Error("expected allowed methods to be set")
	}
}

func TestConfig_DurationValidation(t *testing.T) {
	cfg := GetDefaultConfig()

	// 验证时间单位设置合理
	if cfg.Database.ConnMaxLifetime < time.Minute {
		t.Error("connection max lifetime should be at least 1 minute")
	}
	if cfg.Automation.SweepInterval < time.Second {
		t.Error("sweep interval should be at least 1 second")
	}
}

func TestInitLogger_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	// 测试使用默认配置初始化日志
	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
}

func TestInitLogger_CustomLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Level = "debug"

	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with debug level failed: %v", err)
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Level = "invalid"

	// 应该使用默认的 info 级别
	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with invalid level failed: %v", err)
	}
}

func TestInitLogger_TextFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Format = "text"

	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with text format failed: %v", err)
	}
}

func TestInitLogger_StdoutOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "stdout"

	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with stdout output failed: %v", err)
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "file"
	cfg.Log.FilePath = "/tmp/test-fleetfix.log"

	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with file output failed: %v", err)
	}
}

func TestInitLogger_BothOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "both"
	cfg.Log.FilePath = "/tmp/test-fleetfix-both.log"

	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with both output failed: %v", err)
	}
}

func TestInitLogger_InvalidOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "invalid"

	// 应该回退到 stdout
	err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger with invalid output failed: %v", err)
	}
}

func TestConfig_TracingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	// 验证追踪默认配置
	if cfg.Monitoring.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Monitoring.Tracing.Endpoint == "" {
		t.Error("expected tracing endpoint default to be set")
	}
	if cfg.Monitoring.Tracing.SampleRatio <= 0 || cfg.Monitoring.Tracing.SampleRatio > 1 {
		t.Error("sample ratio should be within (0, 1]")
	}
	if cfg.Monitoring.Tracing.ServiceName != "fleetfix" {
		t.Errorf("unexpected default service name: %s", cfg.Monitoring.Tracing.ServiceName)
	}
}
