package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	// --- 导入内部包 ---
	httpHandler "voiceroom-manager/internal/handler/http"
	gormpersistence "voiceroom-manager/internal/infra/persistence/gorm"
	"voiceroom-manager/internal/infra/setup"
	redisstate "voiceroom-manager/internal/infra/state/redis"
	"voiceroom-manager/internal/ingest"
	"voiceroom-manager/internal/middleware"
	"voiceroom-manager/internal/platform"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
	"voiceroom-manager/internal/service"
	"voiceroom-manager/internal/tasks"
	"voiceroom-manager/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AppEnv          string // 应用环境 (development/production)
	KeyPrefix       string // Redis Key 前缀
	PlatformAPIBase string // 平台 REST API 根地址
	PlatformToken   string // 平台机器人令牌
	GatewayURL      string // 平台事件网关的 WebSocket 地址
	SweepSchedule   string // 清扫任务的调度表达式
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBHost:          os.Getenv("DB_HOST"),
		DBPort:          os.Getenv("DB_PORT"),
		DBName:          os.Getenv("DB_NAME"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ServerPort:      os.Getenv("SERVER_PORT"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		AppEnv:          os.Getenv("APP_ENV"),
		KeyPrefix:       os.Getenv("REDIS_KEY_PREFIX"),
		PlatformAPIBase: os.Getenv("PLATFORM_API_BASE"),
		PlatformToken:   os.Getenv("PLATFORM_TOKEN"),
		GatewayURL:      os.Getenv("PLATFORM_GATEWAY_URL"),
		SweepSchedule:   os.Getenv("SWEEP_SCHEDULE"),
		// --- 设置默认值 ---
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	// 处理 Redis DB
	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr) // 忽略错误，默认为 0

	// --- 设置其他默认值和进行必要检查 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "vr:"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1m"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.PlatformToken == "" {
		return nil, fmt.Errorf("environment variable PLATFORM_TOKEN must be set")
	}
	if cfg.PlatformAPIBase == "" {
		return nil, fmt.Errorf("environment variable PLATFORM_API_BASE must be set")
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("environment variable PLATFORM_GATEWAY_URL must be set")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Ingestor    *ingest.Ingestor
	Gateway     *platform.Gateway
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	reconcile      *service.ReconcileService
	settingsRepo   repository.SettingsRepository
	gatewayCancel  context.CancelFunc
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		// 使用标准输出记录启动时错误，因为 logrus 可能还未完全配置
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	err = setup.MigrateDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	settingsRepo := gormpersistence.NewGormSettingsRepository(db)
	blacklistRepo := gormpersistence.NewGormBlacklistRepository(db)
	recordRepo := gormpersistence.NewGormRoomRecordRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化平台客户端
	log.Info("Initializing platform client...")
	platformAPI := platform.NewClient(cfg.PlatformAPIBase, cfg.PlatformToken)
	log.Info("Platform client initialized")

	// 6. 初始化注册表和 Services
	log.Info("Initializing services...")
	reg := registry.New()
	blacklistCache := service.NewBlacklistCache(blacklistRepo)
	provisionService := service.NewProvisionService(reg, settingsRepo, recordRepo, stateRepo, blacklistCache, platformAPI)
	reclaimService := service.NewReclaimService(reg, settingsRepo, recordRepo, platformAPI)
	controlService := service.NewControlService(reg, reclaimService, platformAPI)
	reconcileService := service.NewReconcileService(reg, settingsRepo, recordRepo, blacklistCache, platformAPI)
	adminService := service.NewAdminService(reg, settingsRepo, blacklistCache, reclaimService)
	log.Info("Services initialized")

	// 7. 初始化事件入口和网关
	log.Info("Initializing ingestor and gateway...")
	ingestor := ingest.New(reg, settingsRepo, provisionService, reclaimService)
	gateway := platform.NewGateway(cfg.GatewayURL, cfg.PlatformToken, ingestor)
	log.Info("Ingestor and gateway initialized")

	// 8. 初始化 Handlers
	log.Info("Initializing handlers...")
	controlHandler := httpHandler.NewControlHandler(controlService)
	adminHandler := httpHandler.NewAdminHandler(adminService)
	log.Info("Handlers initialized")

	// 9. 初始化 Worker Server
	log.Info("Initializing worker server...")
	workerServer := worker.NewWorkerServer(redisClientOpt, reclaimService, log)
	log.Info("Worker server initialized")

	// 10. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	// --- 设置路由 ---
	api := router.Group("/api").Use(middleware.Auth(cfg.JWTSecret))
	{
		// 房主面板操作
		api.POST("/rooms/:roomId/control", controlHandler.HandleAction)

		// 管理入口（外部命令层已完成权限校验）
		api.POST("/admin/:communityId/setup", adminHandler.Setup)
		api.POST("/admin/:communityId/disable", adminHandler.Disable)
		api.POST("/admin/:communityId/cleanup", adminHandler.Cleanup)
		api.PUT("/admin/:communityId/blacklist/:participantId", adminHandler.BlacklistAdd)
		api.DELETE("/admin/:communityId/blacklist/:participantId", adminHandler.BlacklistRemove)
		api.GET("/admin/:communityId/rooms", adminHandler.ListActiveRooms)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 11. 初始化 HTTP Server
	log.Info("Initializing HTTP server...")
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	log.Info("HTTP server initialized")

	// 12. 组装 App 对象
	log.Info("Assembling application...")
	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Ingestor:       ingestor,
		Gateway:        gateway,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
		reconcile:      reconcileService,
		settingsRepo:   settingsRepo,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")

	// 1. 启动时重建注册表：不阻塞网关连接，事件路径对未恢复的
	// 房间是安全的 no-op
	go a.reconcileAll()

	// 2. 事件处理循环
	go a.Ingestor.Run()
	a.Log.Info("Ingestor routine started")

	// 3. 网关连接（可被 Shutdown 取消）
	ctx, cancel := context.WithCancel(context.Background())
	a.gatewayCancel = cancel
	go a.Gateway.Run(ctx)
	a.Log.Info("Gateway routine started")

	// 4. Worker 和周期性清扫
	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	// 5. 启动 HTTP 服务器
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// reconcileAll 对每个已启用的社区执行一次启动重建
func (a *App) reconcileAll() {
	ctx := context.Background()

	communities, err := a.settingsRepo.ListEnabled(ctx)
	if err != nil {
		a.Log.WithError(err).Error("Bootstrap reconciliation: failed to list enabled communities")
		return
	}

	for _, settings := range communities {
		if err := a.reconcile.Initialize(ctx, settings.CommunityID); err != nil {
			a.Log.WithError(err).WithField("community_id", settings.CommunityID).
				Error("Bootstrap reconciliation failed for community")
		}
	}
	a.Log.WithField("communities", len(communities)).Info("Bootstrap reconciliation complete")
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	// 创建周期性清扫任务
	taskPayload, err := tasks.NewRoomSweepTask()
	if err != nil {
		a.Log.Errorf("Failed to create room sweep task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeRoomSweep, taskPayload)

	schedule := a.Config.SweepSchedule
	entryID, err := scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic room sweep task: %v", err)
	} else {
		a.Log.Infof("Periodic room sweep task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	// 启动 Scheduler (需要在一个 goroutine 中运行)
	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil {
			if !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先断开网关，停止新事件流入
	if a.gatewayCancel != nil {
		a.gatewayCancel()
	}

	// 2. 关闭事件通道，让处理循环排空后退出
	if a.Ingestor != nil {
		a.Ingestor.Stop()
	}

	// 3. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 5. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 6. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   clientIP,
			"method":      method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
