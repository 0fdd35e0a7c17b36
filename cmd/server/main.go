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

	"github.com/langchou/ovmsgazer/internal/api/geocoder"
	"github.com/langchou/ovmsgazer/internal/api/handlers"
	"github.com/langchou/ovmsgazer/internal/api/ovms"
	"github.com/langchou/ovmsgazer/internal/config"
	"github.com/langchou/ovmsgazer/internal/repository"
	"github.com/langchou/ovmsgazer/internal/service"
	"github.com/langchou/ovmsgazer/pkg/ws"
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

	logger.Info("Starting ovmsgazer",
		zap.String("port", cfg.ServerPort),
		zap.String("vehicle_id", cfg.VehicleID),
		zap.String("transport", cfg.Transport))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	telemetryRepo := repository.NewTelemetryRepository(db)
	driveRepo := repository.NewDriveRepository(db)
	chargeRepo := repository.NewChargeRepository(db)

	// 逆地理编码可关闭；接口值必须保持 nil，不能是 nil 指针
	var geo service.Geocoder
	if cfg.GeocodeEnabled {
		geo = geocoder.NewClient(cfg.GeocodeURL, logger)
	}

	vehicleService := service.NewVehicleService(
		service.OptionsFromConfig(cfg),
		logger,
		telemetryRepo,
		driveRepo,
		chargeRepo,
		geo,
	)
	vehicleService.SetTransport(newTransport(cfg, logger, vehicleService.Callbacks()))

	// WebSocket Hub，新连接先收到当前快照
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() any {
		if snap := vehicleService.CurrentState(); snap != nil {
			return snap
		}
		return nil
	})
	go wsHub.Run(ctx)

	// 写库成功的快照广播到 WebSocket
	updates := vehicleService.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				wsHub.BroadcastStateUpdate(snap)
			}
		}
	}()

	if err := vehicleService.Start(ctx); err != nil {
		logger.Fatal("Failed to start vehicle service", zap.Error(err))
	}

	handler := handlers.NewHandler(
		logger,
		cfg.VehicleID,
		vehicleService,
		telemetryRepo,
		driveRepo,
		chargeRepo,
		wsHub,
	)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	handler.RegisterRoutes(router)

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

	vehicleService.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newTransport 按配置选择遥测传输
func newTransport(cfg *config.Config, logger *zap.Logger, callbacks ovms.Callbacks) ovms.Transport {
	if cfg.Transport == config.TransportV2 {
		return ovms.NewV2Client(logger, ovms.V2Config{
			Server:         cfg.Server,
			Port:           cfg.V2Port,
			VehicleID:      cfg.VehicleID,
			Secret:         cfg.Password,
			KeepAlive:      cfg.V2KeepAlive,
			ReconnectDelay: cfg.ReconnectDelay,
		}, callbacks)
	}

	return ovms.NewMQTTClient(logger, ovms.MQTTConfig{
		Server:    cfg.Server,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Prefix:    cfg.MQTTPrefix,
		VehicleID: cfg.VehicleID,
	}, callbacks)
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
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
