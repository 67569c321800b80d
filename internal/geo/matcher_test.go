package geo

import (
	"card-recommender/internal/domain"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	return NewMatcher(catalog, DefaultRadiusMiles)
}

func TestHaversine_Identity(t *testing.T) {
	points := []orb.Point{
		{-87.9745, 42.1688},
		{0, 0},
		{179.9, -89.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Haversine(p, p))
	}
}

func TestHaversine_Symmetry(t *testing.T) {
	pairs := [][2]orb.Point{
		{{-87.9745, 42.1688}, {-90.0, 45.0}},
		{{0, 0}, {1, 0}},
		{{-122.4194, 37.7749}, {-73.9352, 40.7306}},
		{{10, -10}, {-170, 10}},
	}
	for _, pair := range pairs {
		assert.InDelta(t, Haversine(pair[0], pair[1]), Haversine(pair[1], pair[0]), 1e-9)
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// один градус по экватору = 2πR/360
	want := 2 * math.Pi * EarthRadiusMiles / 360
	assert.InDelta(t, want, Haversine(orb.Point{0, 0}, orb.Point{1, 0}), 1e-9)

	// антиподы: половина окружности
	assert.InDelta(t, math.Pi*EarthRadiusMiles, Haversine(orb.Point{0, 0}, orb.Point{180, 0}), 1e-6)
}

func TestFindNearby_RadiusFilterIsInclusiveAndComplete(t *testing.T) {
	m := mustDefaultMatcher(t)
	lat, lng := 42.160, -87.967

	got := m.FindNearby(lat, lng)
	included := make(map[string]bool, len(got))
	for _, n := range got {
		included[n.Name] = true
	}

	for _, merchant := range m.Catalog().Merchants() {
		d := Haversine(orb.Point{lng, lat}, orb.Point{merchant.Lng, merchant.Lat})
		assert.Equal(t, d <= m.RadiusMiles(), included[merchant.Name], merchant.Name)
	}
}

func TestFindNearby_BoundaryIncluded(t *testing.T) {
	catalog, err := NewCatalog([]domain.MerchantLocation{
		{Name: "Edge", Category: "gas", Lat: 0, Lng: 1},
	})
	require.NoError(t, err)

	exact := Haversine(orb.Point{0, 0}, orb.Point{1, 0})
	m := NewMatcher(catalog, exact)

	got := m.FindNearby(0, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "Edge", got[0].Name)
	assert.Equal(t, exact, got[0].Distance)
}

func TestFindNearby_SortedAscending(t *testing.T) {
	m := mustDefaultMatcher(t)
	got := m.FindNearby(42.160, -87.967)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestFindNearby_TiesKeepCatalogOrder(t *testing.T) {
	catalog, err := NewCatalog([]domain.MerchantLocation{
		{Name: "Far", Category: "home", Lat: 0.01, Lng: 0},
		{Name: "First", Category: "gas", Lat: 0, Lng: 0.005},
		{Name: "Second", Category: "dining", Lat: 0, Lng: 0.005},
		{Name: "Third", Category: "grocery", Lat: 0, Lng: 0.005},
	})
	require.NoError(t, err)

	got := NewMatcher(catalog, 2).FindNearby(0, 0)
	require.Len(t, got, 4)
	names := []string{got[0].Name, got[1].Name, got[2].Name, got[3].Name}
	assert.Equal(t, []string{"First", "Second", "Third", "Far"}, names)
}

func TestFindNearby_DiningScenario(t *testing.T) {
	m := mustDefaultMatcher(t)
	got := m.FindNearby(42.1688, -87.9745)
	require.NotEmpty(t, got)
	assert.Equal(t, "dining", got[0].Category)
	assert.Less(t, got[0].Distance, 0.05)
}

func TestFindNearby_FarFromEverything(t *testing.T) {
	m := mustDefaultMatcher(t)
	got := m.FindNearby(45.0, -90.0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNewMatcher_DefaultRadius(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	assert.Equal(t, DefaultRadiusMiles, NewMatcher(catalog, 0).RadiusMiles())
	assert.Equal(t, 5.0, NewMatcher(catalog, 5).RadiusMiles())
}
