// internal/reward/selector.go
package reward

import (
	"card-recommender/internal/domain"
	"strings"
)

// Score returns the rate a card earns in the given category.
//
// The first bonus whose category matches (case-insensitive) wins, even if a later
// entry for the same category is higher. Without a match the base rate applies.
func Score(card domain.Card, category string) float64 {
	for _, bonus := range card.CategoryBonuses {
		if strings.EqualFold(bonus.Category, category) {
			return bonus.Rate
		}
	}
	return card.BaseRate
}

// SelectBestCard выбирает карту с наибольшей ставкой для категории.
// Сравнение строгое: при равенстве остаётся первая карта в списке.
// ok == false, если карт нет вообще.
func SelectBestCard(category string, cards []domain.Card) (best *domain.Card, rate float64, ok bool) {
	if len(cards) == 0 {
		return nil, 0, false
	}

	for i := range cards {
		value := Score(cards[i], category)
		if value > rate {
			rate = value
			best = &cards[i]
		}
	}
	return best, rate, true
}
