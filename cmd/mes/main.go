package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/config"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/handler"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"github.com/izzyftw1/rvi-sub006/internal/middleware"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting rvi-mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 自动迁移MES表
	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Warn("AutoMigrate MES tables warning", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化MinIO（质检报告附件存储，连不上时降级为禁用上传）
	minioClient, err := initMinIO(cfg.MinIO)
	if err != nil {
		zapLogger.Warn("MinIO unavailable, inspection report upload disabled", zap.Error(err))
		minioClient = nil
	}

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, minioClient, sse.GlobalHub, cfg, zapLogger)
	handlers := handler.NewHandlers(services, sse.GlobalHub)

	// 订阅实体变更并预热WIP快照
	services.WIP.Start()
	if _, err := services.WIP.Recompute(context.Background()); err != nil {
		zapLogger.Warn("Initial WIP recompute failed", zap.Error(err))
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initMinIO(cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	mes := v1.Group("/mes", middleware.JWTAuth(cfg.JWT.Secret))
	{
		// SSE事件流（token经query参数传入）
		mes.GET("/events", h.SSE.Stream)

		// 工单
		workOrders := mes.Group("/work-orders")
		{
			workOrders.GET("", h.WorkOrder.List)
			workOrders.POST("", h.WorkOrder.Create)
			workOrders.GET("/:id", h.WorkOrder.Get)
			workOrders.GET("/:id/batches", h.Batch.ListByWorkOrder)
			workOrders.POST("/:id/batches", h.Batch.GetOrCreate)
			workOrders.GET("/:id/external-moves", h.External.ListMoves)
		}

		// 生产批次
		batches := mes.Group("/batches")
		{
			batches.GET("", h.Batch.List)
			batches.GET("/:id", h.Batch.Get)
			batches.POST("/:id/stage", h.Batch.MoveStage)
			batches.PUT("/:id/status", h.Batch.UpdateStatus)
			batches.PUT("/:id/quantity", h.Batch.UpdateQuantity)
			batches.POST("/:id/production", h.Batch.RecordProduction)
			batches.POST("/:id/dispatch", h.Batch.Dispatch)

			// 质检
			batches.POST("/:id/qc", h.QC.Submit)
			batches.GET("/:id/qc-data", h.QC.QCData)
			batches.GET("/:id/qc-records", h.QC.Records)
			batches.POST("/:id/qc-report", h.QC.UploadReport)

			// 外协与装箱
			batches.POST("/:id/external/send", h.External.Send)
			batches.GET("/:id/cartons", h.External.ListCartons)
			batches.POST("/:id/cartons", h.External.BuildCarton)
		}

		// 外协回厂
		mes.POST("/external-moves/:id/return", h.External.Return)

		// 纸箱
		mes.POST("/cartons/:id/ready", h.External.MarkCartonReady)

		// 量具与外协方台账
		mes.GET("/instruments", h.Registry.ListInstruments)
		mes.POST("/instruments", h.Registry.CreateInstrument)
		mes.GET("/instruments/:id/calibration", h.Registry.CheckCalibration)
		mes.GET("/partners", h.Registry.ListPartners)
		mes.POST("/partners", h.Registry.CreatePartner)

		// 在制看板
		wip := mes.Group("/wip")
		{
			wip.GET("/snapshot", h.WIP.Snapshot)
			wip.GET("/stages", h.WIP.Stages)
			wip.GET("/external", h.WIP.External)
			wip.POST("/recompute", h.WIP.Recompute)
		}
	}
}
