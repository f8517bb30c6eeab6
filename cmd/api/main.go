package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"droplab/internal/api"
	"droplab/internal/auth"
	"droplab/internal/config"
	"droplab/internal/database"
	"droplab/internal/qrtoken"
	"droplab/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	if err := db.AutoMigrate(
		&database.User{},
		&database.Template{},
		&database.Campaign{},
		&database.BatchJob{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTTL(),
		cfg.Auth.RefreshTTL(),
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	masterKey, err := cfg.Token.MasterKey()
	if err != nil {
		log.Fatalf("load token master key: %v", err)
	}
	tokenCodec, err := qrtoken.NewCodec(masterKey, cfg.Token.TokenTTL())
	if err != nil {
		log.Fatalf("init token codec: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, cfg, db, asynqClient, authService, redisClient, tokenCodec, logger, storageClient)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
