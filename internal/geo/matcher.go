// internal/geo/matcher.go
package geo

import (
	"card-recommender/internal/domain"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// EarthRadiusMiles: статутные мили, не морские
const EarthRadiusMiles = 3959.0

// DefaultRadiusMiles: радиус поиска мерчантов по умолчанию
const DefaultRadiusMiles = 2.0

// Haversine returns the great-circle distance between two points in miles.
// Points are orb.Point values, i.e. [lng, lat].
func Haversine(p1, p2 orb.Point) float64 {
	lat1 := deg2rad(p1.Lat())
	lat2 := deg2rad(p2.Lat())
	dLat := deg2rad(p2.Lat() - p1.Lat())
	dLng := deg2rad(p2.Lon() - p1.Lon())

	a := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	// на антиподах a может чуть превысить 1 из-за округления
	a = math.Min(1, a)
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(a))
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// Matcher ищет мерчантов каталога в заданном радиусе. Без изменяемого состояния,
// безопасен для конкурентного использования.
type Matcher struct {
	catalog     *Catalog
	radiusMiles float64
}

func NewMatcher(catalog *Catalog, radiusMiles float64) *Matcher {
	if radiusMiles <= 0 {
		radiusMiles = DefaultRadiusMiles
	}
	return &Matcher{catalog: catalog, radiusMiles: radiusMiles}
}

func (m *Matcher) RadiusMiles() float64 {
	return m.radiusMiles
}

func (m *Matcher) Catalog() *Catalog {
	return m.catalog
}

// FindNearby returns catalog merchants within the radius (inclusive), closest first.
// Ties keep catalog order. An empty result is not an error.
func (m *Matcher) FindNearby(lat, lng float64) []domain.NearbyMerchant {
	origin := orb.Point{lng, lat}

	nearby := make([]domain.NearbyMerchant, 0)
	for _, merchant := range m.catalog.merchants {
		d := Haversine(origin, orb.Point{merchant.Lng, merchant.Lat})
		if d <= m.radiusMiles {
			nearby = append(nearby, domain.NearbyMerchant{
				MerchantLocation: merchant,
				Distance:         d,
			})
		}
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].Distance < nearby[j].Distance
	})
	return nearby
}
