package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/acme/group-call-bot/internal/api"
	"github.com/acme/group-call-bot/internal/api/handlers"
	"github.com/acme/group-call-bot/internal/app"
	"github.com/acme/group-call-bot/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	cfg := container.Config
	lg := container.Logger

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Name, cfg.App.Version)
	if err != nil {
		lg.Fatal("telemetry setup failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			lg.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if cfg.Kafka.Enabled() {
		topicCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := container.EnsureTopics(topicCtx); err != nil {
			lg.Warn("kafka topics not ensured", zap.Error(err))
		}
		cancel()
	}

	server := api.NewServer(cfg.HTTP, handlers.NewHandlerSet(container))

	lg.Info("starting API server",
		zap.Int("port", cfg.HTTP.Port),
		zap.String("provider", cfg.Calling.Provider),
		zap.String("callback_url", cfg.Bot.CallbackURL()),
	)
	if err := server.Start(ctx); err != nil {
		lg.Error("server terminated", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
