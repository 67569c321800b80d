// cmd/api/main.go
package main

import (
	"card-recommender/internal/auth"
	"card-recommender/internal/bot"
	"card-recommender/internal/config"
	"card-recommender/internal/geo"
	"card-recommender/internal/handler"
	"card-recommender/internal/middleware"
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage/backend"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	// Настройка логгера
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("Не удалось открыть хранилище", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer closeStore()

	catalog, err := geo.OpenCatalog(cfg.MerchantCatalogPath)
	if err != nil {
		slog.Error("Не удалось загрузить каталог мерчантов", "error", err, "path", cfg.MerchantCatalogPath)
		os.Exit(1)
	}
	slog.Info("merchant catalog loaded",
		"merchants", catalog.Len(),
		"categories", catalog.Categories(),
		"bound", catalog.Bound(),
		"radius_miles", cfg.SearchRadiusMiles,
	)

	service := recommend.NewService(geo.NewMatcher(catalog, cfg.SearchRadiusMiles), store)
	tokenService := auth.NewTokenService(cfg)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	defer limiter.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterDeps{
		Store:   store,
		Tokens:  tokenService,
		Service: service,
		Limiter: limiter,
	})

	// Telegram webhook
	if cfg.TelegramBotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			slog.Error("Не удалось инициализировать Telegram бота", "error", err)
			os.Exit(1)
		}

		if cfg.TelegramWebhookURL != "" {
			if err := bot.SetWebhook(api, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
				slog.Error("Не удалось установить webhook", "error", err, "url", cfg.TelegramWebhookURL)
				os.Exit(1)
			}
			slog.Info("Telegram webhook установлен", "url", cfg.TelegramWebhookURL)
		}

		b := bot.New(api, store, tokenService, service)
		router.POST("/telegram", b.WebhookHandler(cfg.TelegramWebhookSecret))
	}

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("🚀 Сервер запущен", "addr", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Останавливаем сервер...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Сервер завершил работу с ошибкой", "error", err)
		os.Exit(1)
	}
	slog.Info("Сервер остановлен")
}
