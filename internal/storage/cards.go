// internal/storage/cards.go
package storage

import (
	"card-recommender/internal/domain"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCardRecord готовит карту к первой записи: новый ID, владелец, метки времени.
func NewCardRecord(userID string, card domain.Card, now time.Time) domain.Card {
	card.ID = uuid.NewString()
	card.UserID = userID
	card.CreatedAt = now
	card.UpdatedAt = now
	card.CategoryBonuses = normalizeBonuses(card.CategoryBonuses)
	return card
}

// ApplyCardUpdate переносит изменяемые поля из patch в existing.
// ID, владелец и время создания не меняются.
func ApplyCardUpdate(existing domain.Card, patch domain.Card, now time.Time) domain.Card {
	existing.Name = patch.Name
	existing.Network = patch.Network
	existing.Color = patch.Color
	existing.BaseRate = patch.BaseRate
	existing.CategoryBonuses = normalizeBonuses(patch.CategoryBonuses)
	existing.UpdatedAt = now
	return existing
}

func normalizeBonuses(in []domain.CategoryBonus) []domain.CategoryBonus {
	out := make([]domain.CategoryBonus, 0, len(in))
	for _, b := range in {
		b.Category = strings.TrimSpace(b.Category)
		out = append(out, b)
	}
	return out
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
