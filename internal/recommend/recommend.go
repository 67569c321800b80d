// internal/recommend/recommend.go
package recommend

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/geo"
	"card-recommender/internal/reward"
	"card-recommender/internal/storage"
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
)

// Recommend picks the best card for the merchant closest to (lat, lng).
// It returns nil when there are no cards or no merchant within the matcher radius.
func Recommend(matcher *geo.Matcher, lat, lng float64, cards []domain.Card) *domain.Recommendation {
	if len(cards) == 0 {
		return nil
	}

	nearby := matcher.FindNearby(lat, lng)
	if len(nearby) == 0 {
		return nil
	}

	merchant := nearby[0]
	best, rate, _ := reward.SelectBestCard(merchant.Category, cards)

	return &domain.Recommendation{
		Card:      best,
		Merchant:  merchant,
		Rate:      rate,
		AllNearby: nearby,
		Location:  domain.Location{Lat: lat, Lng: lng},
	}
}

// Service связывает чистый расчёт с хранилищем карт
type Service struct {
	matcher *geo.Matcher
	cards   storage.CardStorage
}

func NewService(matcher *geo.Matcher, cards storage.CardStorage) *Service {
	return &Service{matcher: matcher, cards: cards}
}

// CheckLocation loads the user's cards and runs the recommendation pipeline.
func (s *Service) CheckLocation(ctx context.Context, userID string, lat, lng float64) (*domain.Recommendation, error) {
	cards, err := s.cards.ListCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	rec := Recommend(s.matcher, lat, lng, cards)
	if rec == nil {
		slog.Debug("no recommendation",
			"user_id", userID,
			"cards", len(cards),
			"lat", lat,
			"lng", lng,
			"in_catalog_area", s.matcher.Catalog().Bound().Contains(orb.Point{lng, lat}),
		)
		return nil, nil
	}

	slog.Info("recommendation computed",
		"user_id", userID,
		"merchant", rec.Merchant.Name,
		"category", rec.Merchant.Category,
		"rate", rec.Rate,
		"nearby", len(rec.AllNearby),
	)
	return rec, nil
}

// Nearby returns catalog merchants around the point, closest first.
func (s *Service) Nearby(lat, lng float64) []domain.NearbyMerchant {
	return s.matcher.FindNearby(lat, lng)
}

func (s *Service) RadiusMiles() float64 {
	return s.matcher.RadiusMiles()
}
