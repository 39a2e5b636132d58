package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/fleetcare/internal/api/handlers"
	"github.com/langchou/fleetcare/internal/api/telemetry"
	"github.com/langchou/fleetcare/internal/checkup"
	"github.com/langchou/fleetcare/internal/config"
	"github.com/langchou/fleetcare/internal/jobs"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
	"github.com/langchou/fleetcare/internal/service"
	"github.com/langchou/fleetcare/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Fleetcare", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	engineRepo := repository.NewEngineRepository(db)
	checkupRepo := repository.NewCheckupRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	bayRepo := repository.NewServiceBayRepository(db)
	occurrenceRepo := repository.NewOccurrenceRepository(db)

	// 保养计算
	engines := checkup.NewEngineResolver(engineRepo, cfg.EngineCacheSize, logger)
	intervals := checkup.NewIntervalResolver(engines, engineRepo, logger)
	engine := checkup.NewEngine(intervals, cfg.CheckupConfig(), logger)
	reconciler := checkup.NewReconciler(engine, checkupRepo, logger)

	// 外部 API，未配置时只使用请求参数与历史数据
	var (
		metrics   service.MetricsProvider
		revisions service.RevisionProvider
	)
	if client := telemetry.NewClient(cfg.TelemetryAPIHost, cfg.TelemetryAPIToken, cfg.ExternalCallTimeout); client.IsConfigured() {
		metrics = client
	} else {
		logger.Warn("Telemetry API not configured")
	}
	if client := telemetry.NewClient(cfg.ODPAPIHost, cfg.ODPAPIToken, cfg.ExternalCallTimeout); client.IsConfigured() {
		revisions = client
	} else {
		logger.Warn("ODP API not configured")
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 事件通知
	publishers := []notify.Publisher{notify.NewHubPublisher(wsHub)}
	if mqttCfg, ok := cfg.MQTTConfig(); ok {
		mqttPublisher, err := notify.NewMQTTPublisher(mqttCfg, logger)
		if err != nil {
			logger.Warn("MQTT publisher disabled", zap.Error(err))
		} else {
			defer mqttPublisher.Close()
			publishers = append(publishers, mqttPublisher)
		}
	}
	dispatcher := notify.NewDispatcher(logger, publishers...)
	go dispatcher.Run(ctx)

	// 创建服务
	checkupService := service.NewCheckupService(logger, scheduleRepo, checkupRepo, reconciler,
		metrics, revisions, dispatcher, cfg.ExternalCallTimeout)
	ticketService := service.NewTicketService(logger, ticketRepo, scheduleRepo, dispatcher)
	bayService := service.NewServiceBayService(logger, bayRepo, dispatcher)
	occurrenceService := service.NewOccurrenceService(logger, occurrenceRepo, dispatcher)

	// 新连接先收到当前超时的事件
	wsHub.SetInitDataProvider(func() interface{} {
		alerts, err := occurrenceService.OpenAlerts(ctx)
		if err != nil {
			logger.Warn("Failed to load open alerts", zap.Error(err))
			return nil
		}
		return alerts
	})

	// 批处理任务
	var scheduler *jobs.Scheduler
	if cfg.JobsEnabled {
		scheduler = jobs.NewScheduler(logger, scheduleRepo, occurrenceService)
		if err := scheduler.Start(cfg.JobSpecs()); err != nil {
			logger.Fatal("Failed to start jobs", zap.Error(err))
		}
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		checkupService,
		ticketService,
		bayService,
		occurrenceService,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	cancel()

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
