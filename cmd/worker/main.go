// Package main runs the standalone transcription worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livebooks-app/backend/config"
	"github.com/livebooks-app/backend/internal/livebooks"
	"github.com/livebooks-app/backend/internal/palestras"
	"github.com/livebooks-app/backend/internal/realtime"
	"github.com/livebooks-app/backend/internal/transcriber"
	"github.com/livebooks-app/backend/pkg/database"
	"github.com/livebooks-app/backend/pkg/queue"
	"github.com/livebooks-app/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		MediaBucket:          cfg.AWS.MediaBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	palestraRepo := palestras.NewRepository(pool)
	livebookRepo := livebooks.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	dispatcher := livebooks.NewDispatcher(livebookRepo, cfg.Livebook.GeneratorURL, logger)

	provider := transcriber.NewClient(cfg.Transcription.BaseURL, cfg.Transcription.APIKey,
		time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second, logger)
	processor := transcriber.NewProcessor(palestraRepo, s3Client, provider, jobQueue, logger)
	processor.SetDispatcher(dispatcher)
	processor.SetStatusPublisher(pubsub)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("transcription worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
