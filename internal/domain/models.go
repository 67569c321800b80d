// internal/domain/models.go
package domain

import "time"

// Location: координаты пользователя в градусах
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MerchantLocation: запись каталога, не меняется после загрузки
type MerchantLocation struct {
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Lat      float64 `json:"lat" yaml:"lat"`
	Lng      float64 `json:"lng" yaml:"lng"`
}

// NearbyMerchant: мерчант + расстояние в милях от точки запроса
type NearbyMerchant struct {
	MerchantLocation
	Distance float64 `json:"distance"`
}

// CategoryBonus: повышенная ставка по категории
type CategoryBonus struct {
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
}

type Card struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Network         string          `json:"network"`
	Color           string          `json:"color"`
	BaseRate        float64         `json:"base_rate"`
	CategoryBonuses []CategoryBonus `json:"category_bonuses"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Recommendation: результат одной проверки локации, нигде не хранится
type Recommendation struct {
	Card      *Card            `json:"card"`
	Merchant  NearbyMerchant   `json:"merchant"`
	Rate      float64          `json:"rate"`
	AllNearby []NearbyMerchant `json:"all_nearby"`
	Location  Location         `json:"location"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserSettings struct {
	UserID          string `json:"user_id"`
	LocationEnabled bool   `json:"location_enabled"`
	TelegramID      *int64 `json:"telegram_id,omitempty"`
}
