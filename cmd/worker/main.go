package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"droplab/internal/config"
	"droplab/internal/database"
	"droplab/internal/metrics"
	"droplab/internal/qrtoken"
	"droplab/internal/renderer"
	"droplab/internal/storage"
	"droplab/internal/tasks"
	"droplab/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	masterKey, err := cfg.Token.MasterKey()
	if err != nil {
		log.Fatalf("load token master key: %v", err)
	}
	tokenCodec, err := qrtoken.NewCodec(masterKey, cfg.Token.TokenTTL())
	if err != nil {
		log.Fatalf("init token codec: %v", err)
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	rendererManager := renderer.NewManager()
	defer func() {
		if err := rendererManager.Close(); err != nil {
			logger.Error("close renderer failed", slog.Any("error", err))
		}
	}()

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
	})

	batchHandler := worker.NewBatchTaskHandler(
		db,
		storageClient,
		redisClient,
		rendererManager,
		tokenCodec,
		logger,
		cfg.API.FrontendBaseURL,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeBatchPersonalize, batchHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
