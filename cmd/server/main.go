// Package main runs the livebooks pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livebooks-app/backend/config"
	"github.com/livebooks-app/backend/internal/intake"
	"github.com/livebooks-app/backend/internal/livebooks"
	"github.com/livebooks-app/backend/internal/middleware"
	"github.com/livebooks-app/backend/internal/palestras"
	"github.com/livebooks-app/backend/internal/realtime"
	"github.com/livebooks-app/backend/internal/transcriber"
	"github.com/livebooks-app/backend/pkg/database"
	"github.com/livebooks-app/backend/pkg/queue"
	"github.com/livebooks-app/backend/pkg/redis"
	"github.com/livebooks-app/backend/pkg/response"
	"github.com/livebooks-app/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		MediaBucket:          cfg.AWS.MediaBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(pubsub, logger)

	// Palestras
	palestraRepo := palestras.NewRepository(pool)
	palestraHandler := palestras.NewHandler(palestraRepo, s3Client, logger)

	// Intake
	intakeHandler := intake.NewHandler(palestraRepo, s3Client, jobQueue, cfg.Pipeline.MaxUploadBytes, logger)

	// Livebooks
	livebookRepo := livebooks.NewRepository(pool)
	dispatcher := livebooks.NewDispatcher(livebookRepo, cfg.Livebook.GeneratorURL, logger)
	livebookHandler := livebooks.NewHandler(livebookRepo, palestraRepo, dispatcher, logger)
	var tokens *livebooks.TokenService
	if cfg.Livebook.WebhookSecret != "" {
		tokens = livebooks.NewTokenService(cfg.Livebook.WebhookSecret)
	}
	livebookWebhook := livebooks.NewWebhookHandler(livebookRepo, palestraRepo, tokens, logger)
	livebookWebhook.SetStatusPublisher(pubsub)

	// Transcription
	provider := transcriber.NewClient(cfg.Transcription.BaseURL, cfg.Transcription.APIKey,
		time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second, logger)
	processor := transcriber.NewProcessor(palestraRepo, s3Client, provider, jobQueue, logger)
	processor.SetDispatcher(dispatcher)
	processor.SetStatusPublisher(pubsub)
	transcriptionHandler := transcriber.NewHandler(processor, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Palestras
	router.POST("/palestras", palestraHandler.Create)
	router.GET("/palestras", palestraHandler.List)
	router.GET("/palestras/:id", palestraHandler.GetByID)
	router.GET("/palestras/:id/status", palestraHandler.Status)
	router.GET("/palestras/:id/media-url", palestraHandler.MediaDownloadURL)

	// Media intake
	router.POST("/palestras/:id/media", intakeHandler.Upload)

	// Transcription trigger (sync or async)
	router.POST("/transcriptions", transcriptionHandler.Trigger)

	// Livebooks
	router.GET("/palestras/:id/livebooks", livebookHandler.ListByPalestra)
	router.POST("/palestras/:id/livebooks", livebookHandler.Request)
	router.GET("/livebooks/:id", livebookHandler.GetByID)

	// Webhooks (token validated in handler when configured)
	router.POST("/webhooks/livebook-ready", livebookWebhook.LivebookReady)

	// WebSocket status push
	router.GET("/ws/palestras/:id", hub.ServeWs())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded transcription worker: background tasks outlive the requests
	// that trigger them and stop only on process shutdown.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.EmbeddedWorker {
		go processor.Run(workerCtx)
		logger.Info("embedded transcription worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
