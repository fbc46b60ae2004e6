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
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/prop-engine/internal/api/handlers"
	"github.com/stitts-dev/prop-engine/internal/calibration"
	"github.com/stitts-dev/prop-engine/internal/config"
	"github.com/stitts-dev/prop-engine/internal/websocket"
	"github.com/stitts-dev/prop-engine/pkg/cache"
	"github.com/stitts-dev/prop-engine/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("", cfg.IsDevelopment())
	logger.WithService("prop-engine").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting simulation engine service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Redis is optional; without it the calibrator persists to disk
	// and result caching is disabled.
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithService("prop-engine").Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithService("prop-engine").WithError(err).Warn("Redis unreachable, continuing without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Calibration state store: redis when available, local files
	// otherwise.
	var store calibration.Store
	if redisClient != nil {
		store = calibration.NewRedisStore(redisClient, "calibration", structuredLogger)
	} else {
		store = calibration.NewFileStore(cfg.ParameterFile, cfg.PredictionLogFile, structuredLogger)
	}

	calibConfig := calibration.DefaultCalibrationConfig()
	calibConfig.Enabled = cfg.AutoTuneEnabled
	calibConfig.TriggerMode = calibration.TriggerMode(cfg.CalibrationTrigger)
	calibConfig.CalibrateEvery = cfg.CalibrationEvery
	calibConfig.Strategy = calibration.Strategy(cfg.TuningStrategy)
	calibConfig.MinSampleSize = cfg.MinSampleSize
	calibConfig.PerformanceWindow = cfg.PerformanceWindow
	calibConfig.AlertROIThreshold = cfg.AlertROIThreshold
	calibConfig.AlertBrierThreshold = cfg.AlertBrierThreshold

	calibrator := calibration.NewAutoCalibrator(calibConfig, store, structuredLogger)

	cacheService := cache.NewSimulationCacheService(redisClient, structuredLogger)

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run()

	// Scheduled calibration passes for time-based trigger modes
	scheduler := cron.New()
	if cfg.AutoTuneEnabled && cfg.CalibrationCron != "" && cfg.CalibrationTrigger != "count" {
		_, err := scheduler.AddFunc(cfg.CalibrationCron, func() {
			result := calibrator.RunCalibration()
			logger.WithCalibrationContext(string(result.Strategy), result.SampleSize).
				WithField("status", result.Status).Info("Scheduled calibration pass finished")
		})
		if err != nil {
			logger.WithService("prop-engine").Fatalf("Invalid calibration cron spec: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	simulationHandler := handlers.NewSimulationHandler(calibrator, cacheService, wsHub, cfg, structuredLogger)
	calibrationHandler := handlers.NewCalibrationHandler(calibrator, cfg, structuredLogger)
	healthHandler := handlers.NewHealthHandler(redisClient, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/simulations", simulationHandler.RunSimulation)
		apiV1.GET("/simulations/:id", simulationHandler.GetSimulation)

		apiV1.POST("/predictions", calibrationHandler.LogPrediction)
		apiV1.GET("/predictions", calibrationHandler.GetPredictions)
		apiV1.PUT("/predictions/:id/outcome", calibrationHandler.UpdateOutcome)

		apiV1.POST("/calibration/run", calibrationHandler.RunCalibration)
		apiV1.GET("/calibration/report", calibrationHandler.GetReport)
		apiV1.GET("/calibration/parameters", calibrationHandler.GetParameters)
		apiV1.POST("/calibration/reset", calibrationHandler.ResetToDefaults)
	}

	router.GET("/ws/progress", wsHub.HandleWebSocket)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService("prop-engine").WithField("port", cfg.Port).Info("Simulation engine service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService("prop-engine").Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService("prop-engine").Info("Shutting down simulation engine service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithService("prop-engine").Fatalf("Service forced to shutdown: %v", err)
	}

	logger.WithService("prop-engine").Info("Simulation engine service exited")
}
