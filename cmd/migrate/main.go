// cmd/migrate/main.go
package main

import (
	"card-recommender/internal/config"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
)

// Использование: migrate [up|down|status|version], по умолчанию up
func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	command, args := "up", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	db, err := sql.Open("pgx", cfg.DBConn)
	if err != nil {
		slog.Error("Не удалось открыть БД", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		slog.Error("Не удалось выбрать диалект", "error", err)
		os.Exit(1)
	}

	// Миграции ищем относительно текущей рабочей директории
	wd, err := os.Getwd()
	if err != nil {
		slog.Error("Не удалось получить рабочую директорию", "error", err)
		os.Exit(1)
	}
	migrationsDir := filepath.Join(wd, "migrations")

	slog.Info("Применяем миграции", "dir", migrationsDir, "command", command)

	if err := goose.RunContext(context.Background(), command, db, migrationsDir, args...); err != nil {
		slog.Error("Миграции завершились с ошибкой", "error", err, "command", command)
		os.Exit(1)
	}

	slog.Info("✅ Готово", "command", command)
}
