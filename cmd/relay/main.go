package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/fanout"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/server"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/store"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/config"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// One id shared by the relay and the fanout adapter, so an instance can
	// recognize and skip its own published envelopes.
	processID := uuid.NewString()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	sessionStore, err := store.NewMongoStore(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		logger.Error("Failed to connect to session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessionStore.Close(closeCtx); err != nil {
			logger.Error("Failed to close session store", slog.Any("error", err))
		}
	}()

	adapter, err := newAdapter(ctx, cfg, sessionStore, processID, logger)
	if err != nil {
		logger.Error("Failed to initialize fanout adapter", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Fanout adapter initialized", slog.String("mode", cfg.Fanout.Mode))

	app := server.NewApp(ctx, logger, cfg, sessionStore, adapter, processID)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

// newAdapter selects the cross-process broadcast adapter from config.
func newAdapter(ctx context.Context, cfg *config.Config, sessionStore *store.MongoStore, processID string, logger *slog.Logger) (fanout.Adapter, error) {
	switch cfg.Fanout.Mode {
	case "", "none":
		return fanout.Noop{}, nil
	case "mongo":
		return fanout.NewMongoAdapter(sessionStore.Database(), cfg.Fanout.BroadcastCollection, processID, logger), nil
	case "redis":
		return fanout.NewRedisAdapter(ctx, cfg.Fanout.RedisURL, cfg.Fanout.RedisChannel, processID, logger)
	default:
		return nil, fmt.Errorf("unknown fanout mode %q", cfg.Fanout.Mode)
	}
}
