package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fleetfix/internal/config"
	"fleetfix/internal/handlers"
	"fleetfix/internal/middleware"
	"fleetfix/internal/models"
	"fleetfix/internal/observability"
	"fleetfix/internal/services"
	"fleetfix/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	// 允许通过 flags/env 覆盖数据库连接（保持与 migrate 一致的接口）
	var (
		flagDSN   string
		dbHost    string
		dbPortStr string
		dbUser    string
		dbPass    string
		dbName    string
		dbSSLMode string
		dbTZ      string
		srvHost   string
		srvPort   int
	)
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagSet.StringVar(&flagDSN, "dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides other DB flags")
	flagSet.StringVar(&dbHost, "db-host", getenvDefault("DB_HOST", cfg.Database.Host), "database host")
	flagSet.StringVar(&dbPortStr, "db-port", getenvDefault("DB_PORT", fmt.Sprintf("%d", cfg.Database.Port)), "database port")
	flagSet.StringVar(&dbUser, "db-user", getenvDefault("DB_USER", cfg.Database.User), "database user")
	flagSet.StringVar(&dbPass, "db-pass", getenvDefault("DB_PASSWORD", cfg.Database.Password), "database password")
	flagSet.StringVar(&dbName, "db-name", getenvDefault("DB_NAME", cfg.Database.Name), "database name")
	flagSet.StringVar(&dbSSLMode, "db-sslmode", getenvDefault("DB_SSLMODE", "disable"), "sslmode (disable, require, verify-ca, verify-full)")
	flagSet.StringVar(&dbTZ, "db-timezone", getenvDefault("DB_TIMEZONE", "UTC"), "database timezone")
	flagSet.StringVar(&srvHost, "host", getenvDefault("FLEETFIX_HOST", cfg.Server.Host), "server host (listen)")
	flagSet.IntVar(&srvPort, "port", func() int {
		if p := os.Getenv("FLEETFIX_PORT"); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				return n
			}
		}
		return cfg.Server.Port
	}(), "server port (listen)")
	_ = flagSet.Parse(os.Args[1:])

	// 组装 DSN
	dsn := flagDSN
	if dsn == "" {
		host := firstNonEmpty(dbHost, cfg.Database.Host)
		user := firstNonEmpty(dbUser, cfg.Database.User)
		pass := firstNonEmpty(dbPass, cfg.Database.Password)
		name := firstNonEmpty(dbName, cfg.Database.Name)
		port := dbPortStr
		if port == "" && cfg.Database.Port != 0 {
			port = fmt.Sprintf("%d", cfg.Database.Port)
		}
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", host, user, pass, name, port, dbSSLMode, dbTZ)
	}
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Info)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	// 根据需要迁移（此处默认迁移，生产可改为条件控制）
	if err := db.AutoMigrate(
		&models.User{}, &models.Technician{}, &models.Location{}, &models.Asset{},
		&models.WorkOrder{}, &models.WorkOrderActivity{}, &models.Task{},
		&models.Notification{}, &models.AppSetting{},
		&models.AutomationRule{}, &models.RuleExecutionLog{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 可选外部 webhook 通道
	var webhookClient *notify.Client
	if cfg.Notify.Enabled {
		webhookClient = notify.NewClient(&notify.Config{
			DefaultURL: cfg.Notify.WebhookURL,
			AuthToken:  cfg.Notify.AuthToken,
			Timeout:    cfg.Notify.Timeout,
			MaxRetries: cfg.Notify.MaxRetries,
		}, appLogger)
	}

	// 实时推送
	hub := services.NewRealtimeHub()
	go hub.Run()

	// 初始化业务服务
	settingsService := services.NewSettingsService(db)
	snapshots := services.NewSnapshotProvider(db)
	evaluator := services.NewConditionEvaluator(appLogger)
	selector := services.NewRuleSelector(db, evaluator, appLogger)
	notificationService := services.NewNotificationService(db, appLogger, webhookClient)
	notificationService.SetHub(hub)
	if cfg.Notify.BreakerMaxFailures > 0 || cfg.Notify.BreakerCoolOff > 0 {
		bc := services.DefaultDeliveryBreakerConfig()
		if cfg.Notify.BreakerMaxFailures > 0 {
			bc.MaxFailures = cfg.Notify.BreakerMaxFailures
		}
		if cfg.Notify.BreakerCoolOff > 0 {
			bc.CoolOff = cfg.Notify.BreakerCoolOff
		}
		notificationService.SetBreakerConfig(bc)
	}
	executor := services.NewActionExecutor(db, appLogger, notificationService)
	automationService := services.NewAutomationService(db, appLogger, snapshots, selector, executor)
	automationService.SetHub(hub)
	workOrderService := services.NewWorkOrderService(db, appLogger)
	workOrderService.SetAutomationService(automationService)
	technicianService := services.NewTechnicianService(db, appLogger)
	statisticsService := services.NewStatisticsService(db, appLogger)
	sweeper := services.NewEscalationSweeper(db, appLogger, settingsService, snapshots, automationService, cfg.Automation.SweepWorkers)
	sweeper.SetHub(hub)

	// 后台任务：升级扫描 + 通知派发
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweepCron *cron.Cron
	if cfg.Automation.SweepCron != "" {
		sweepCron = cron.New()
		_, err := sweepCron.AddFunc(cfg.Automation.SweepCron, func() {
			if _, err := sweeper.RunSweep(ctx); err != nil {
				appLogger.Errorf("scheduled sweep failed: %v", err)
			}
		})
		if err != nil {
			appLogger.Fatalf("Invalid sweep cron expression %q: %v", cfg.Automation.SweepCron, err)
		}
		sweepCron.Start()
		defer sweepCron.Stop()
	} else {
		go sweeper.StartSweepLoop(ctx, cfg.Automation.SweepInterval)
	}
	go notificationService.StartDispatcher(ctx, cfg.Automation.DispatchInterval)

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	// Rate limit: per-path overrides if configured, otherwise global values
	r.Use(middleware.RateLimitMiddlewareFromConfig(cfg))
	// OpenTelemetry Gin 中间件
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	// 健康检查
	healthHandler := handlers.NewHealthHandler(cfg, db)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// API 路由组（管理类）
	api := r.Group("/api")
	// 全部管理接口先做鉴权
	api.Use(middleware.AuthMiddleware(cfg))

	// Fine-grained RBAC by resource
	workOrdersAPI := api.Group("/")
	workOrdersAPI.Use(middleware.RequireResourcePermission("work_orders"))
	handlers.RegisterWorkOrderRoutes(workOrdersAPI, handlers.NewWorkOrderHandler(workOrderService, appLogger))

	techniciansAPI := api.Group("/")
	techniciansAPI.Use(middleware.RequireResourcePermission("technicians"))
	handlers.RegisterTechnicianRoutes(techniciansAPI, handlers.NewTechnicianHandler(technicianService, appLogger))

	automationAPI := api.Group("/")
	automationAPI.Use(middleware.RequireResourcePermission("automation"))
	handlers.RegisterAutomationRoutes(automationAPI, handlers.NewAutomationHandler(automationService, appLogger))

	slaAPI := api.Group("/")
	slaAPI.Use(middleware.RequireResourcePermission("sla"))
	handlers.RegisterSLARoutes(slaAPI, handlers.NewSLAHandler(snapshots, sweeper, appLogger))

	statisticsAPI := api.Group("/")
	statisticsAPI.Use(middleware.RequireResourcePermission("statistics"))
	handlers.RegisterStatisticsRoutes(statisticsAPI, handlers.NewStatisticsHandler(statisticsService, appLogger))

	notificationsAPI := api.Group("/")
	notificationsAPI.Use(middleware.RequireResourcePermission("notifications"))
	handlers.RegisterNotificationRoutes(notificationsAPI, handlers.NewNotificationHandler(notificationService))

	settingsAPI := api.Group("/")
	settingsAPI.Use(middleware.RequireResourcePermission("settings"))
	handlers.RegisterSettingsRoutes(settingsAPI, handlers.NewSettingsHandler(settingsService))

	// v1 路由组（实时推送与客户端指标）
	v1 := r.Group("/api/v1")
	{
		rtHandler := handlers.NewRealtimeHandler(hub)
		v1.GET("/ws", rtHandler.HandleWebSocket)
		v1.GET("/ws/stats", rtHandler.GetStats)

		// 轻量指标上报（移动端/看板）
		ingest := handlers.NewMetricsIngestHandler(handlers.NewMetricsAggregator())
		v1.POST("/metrics/ingest", ingest.Ingest)
	}

	// 启动服务器
	// 监听地址优先使用 flags/env 覆盖
	host := firstNonEmpty(srvHost, cfg.Server.Host)
	port := srvPort
	if port == 0 {
		port = cfg.Server.Port
	}
	listenAddr := fmt.Sprintf("%s:%d", host, port)

	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

// helpers (copied from migrate for consistency)
func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// corsMiddleware CORS 中间件
func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := "*"
	allowedMethods := "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization"
	if cfg != nil && cfg.Security.CORS.Enabled {
		if len(cfg.Security.CORS.AllowedOrigins) > 0 {
			allowedOrigins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		if len(cfg.Security.CORS.AllowedMethods) > 0 {
			allowedMethods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
		}
		if len(cfg.Security.CORS.AllowedHeaders) > 0 {
			allowedHeaders = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
