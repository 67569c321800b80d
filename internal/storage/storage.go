// internal/storage/storage.go
package storage

import (
	"card-recommender/internal/domain"
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// CardStorage: карты пользователя. Все операции ограничены userID:
// чужую карту нельзя ни прочитать, ни изменить.
type CardStorage interface {
	ListCards(ctx context.Context, userID string) ([]domain.Card, error)
	GetCard(ctx context.Context, userID, cardID string) (*domain.Card, error)
	InsertCard(ctx context.Context, userID string, card domain.Card) (*domain.Card, error)
	UpdateCard(ctx context.Context, userID, cardID string, card domain.Card) (*domain.Card, error)
	DeleteCard(ctx context.Context, userID, cardID string) error
}

type UserStorage interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

type SettingsStorage interface {
	GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	SetLocationEnabled(ctx context.Context, userID string, enabled bool) error
	LinkTelegram(ctx context.Context, userID string, telegramID int64) error
	UserByTelegram(ctx context.Context, telegramID int64) (string, error)
}

// Storage: всё, что нужно API и боту
type Storage interface {
	CardStorage
	UserStorage
	SettingsStorage
}
