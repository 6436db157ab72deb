package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/assessment"
	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/database"
	"github.com/acuityrisk/sanctionscan/internal/screening"
	"github.com/acuityrisk/sanctionscan/internal/server"
	"github.com/acuityrisk/sanctionscan/internal/snapshot"
	"github.com/acuityrisk/sanctionscan/internal/sources"
	"github.com/acuityrisk/sanctionscan/internal/sources/eusanctions"
	"github.com/acuityrisk/sanctionscan/internal/sources/ofac"
	"github.com/acuityrisk/sanctionscan/internal/sources/opensanctions"
	"github.com/acuityrisk/sanctionscan/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.New(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	store, err := assessment.NewStore(db)
	if err != nil {
		zapLogger.Fatal("Failed to prepare assessment store", zap.Error(err))
	}

	// Optional Redis-backed list snapshots for warm restarts.
	var snapshots screening.SnapshotStore
	if cfg.Redis.Address != "" {
		redisStore, err := snapshot.NewRedisStore(context.Background(), cfg.Redis, cfg.Screening.CacheTTL, sugar)
		if err != nil {
			zapLogger.Warn("List snapshots disabled", zap.Error(err))
		} else {
			defer redisStore.Close()
			snapshots = redisStore
		}
	}

	fetcher := sources.NewFetcher(cfg.HTTPClient, sugar)
	srcs := []screening.Source{
		ofac.NewClient(fetcher, cfg.OFAC, sugar),
		eusanctions.NewClient(fetcher, cfg.EU, sugar),
		opensanctions.NewClient(cfg.HTTPClient, cfg.OpenSanctions, sugar),
	}

	cache := screening.NewListCache(cfg.Screening.CacheTTL, cfg.Screening.FailureBackoff, snapshots, sugar)
	engine := screening.NewEngine(cache, cfg.Screening.DefaultThreshold, sugar)

	srv := server.New(cfg.Server, engine, srcs, store, zapLogger)
	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("API server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Shutdown error", zap.Error(err))
	}
}
