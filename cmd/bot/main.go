// cmd/bot/main.go
package main

import (
	"card-recommender/internal/auth"
	"card-recommender/internal/bot"
	"card-recommender/internal/config"
	"card-recommender/internal/geo"
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage/backend"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

// Бот в режиме long polling, для локального запуска без webhook
func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if cfg.TelegramBotToken == "" {
		slog.Error("TELEGRAM_BOT_TOKEN not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	catalog, err := geo.OpenCatalog(cfg.MerchantCatalogPath)
	if err != nil {
		slog.Error("Failed to load merchant catalog", "error", err)
		os.Exit(1)
	}
	service := recommend.NewService(geo.NewMatcher(catalog, cfg.SearchRadiusMiles), store)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		slog.Error("Failed to init bot", "error", err)
		os.Exit(1)
	}

	// polling и webhook не работают одновременно
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		slog.Warn("Failed to delete webhook", "error", err)
	}

	slog.Info("Bot started", "username", api.Self.UserName)
	bot.New(api, store, auth.NewTokenService(cfg), service).Poll(ctx, api)
	slog.Info("Bot stopped")
}
