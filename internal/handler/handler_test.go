package handler

import (
	"bytes"
	"card-recommender/internal/auth"
	"card-recommender/internal/config"
	"card-recommender/internal/geo"
	"card-recommender/internal/middleware"
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage/memory"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Точка у ресторана из каталога (Buffalo Grove)
const diningLat, diningLng = 42.1688, -87.9745

type testServer struct {
	router *gin.Engine
	store  *memory.Storage
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := geo.DefaultCatalog()
	require.NoError(t, err)

	store := memory.NewStorage()
	tokens := auth.NewTokenService(config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
	service := recommend.NewService(geo.NewMatcher(catalog, geo.DefaultRadiusMiles), store)

	router := NewRouter(RouterDeps{Store: store, Tokens: tokens, Service: service, Limiter: limiter})
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	w, out := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": email, "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := out["session"].(map[string]any)
	return session["access_token"].(string)
}

func sapphire() gin.H {
	return gin.H{
		"name":      "Sapphire",
		"network":   "visa",
		"color":     "blue",
		"base_rate": 1,
		"category_bonuses": []gin.H{
			{"category": "Dining", "rate": 3},
			{"category": "travel", "rate": 2},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w, out := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w, out := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "Ann@Example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["success"])
	user := out["user"].(map[string]any)
	assert.Equal(t, "ann@example.com", user["email"])
	assert.NotEmpty(t, user["id"])

	settings, err := s.store.GetSettings(t.Context(), user["id"].(string))
	require.NoError(t, err)
	assert.False(t, settings.LocationEnabled)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "ann@example.com", "password": "password1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ann@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code)
	token := out["session"].(map[string]any)["access_token"].(string)

	w, out = s.do(t, http.MethodGet, "/api/v1/auth/user", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user["id"], out["user"].(map[string]any)["id"])

	w, out = s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t, nil)
	s.signup(t, "bob@example.com")

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"signup missing password", "/api/v1/auth/signup", gin.H{"email": "x@example.com"}, http.StatusBadRequest},
		{"signup bad email", "/api/v1/auth/signup", gin.H{"email": "nope", "password": "password1"}, http.StatusBadRequest},
		{"signup short password", "/api/v1/auth/signup", gin.H{"email": "x@example.com", "password": "123"}, http.StatusBadRequest},
		{"signup password over 72 bytes", "/api/v1/auth/signup", gin.H{"email": "x@example.com", "password": strings.Repeat("p", 73)}, http.StatusBadRequest},
		{"signup multibyte password over 72 bytes", "/api/v1/auth/signup", gin.H{"email": "x@example.com", "password": strings.Repeat("пароль", 7)}, http.StatusBadRequest},
		{"signup bad json", "/api/v1/auth/signup", "{", http.StatusBadRequest},
		{"login missing fields", "/api/v1/auth/login", gin.H{}, http.StatusBadRequest},
		{"login wrong password", "/api/v1/auth/login", gin.H{"email": "bob@example.com", "password": "wrong-pass"}, http.StatusUnauthorized},
		{"login unknown user", "/api/v1/auth/login", gin.H{"email": "eve@example.com", "password": "password1"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/api/v1/cards", "/api/v1/auth/user", "/api/v1/merchants/nearby?lat=1&lng=1"} {
		w, _ := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w, _ := s.do(t, http.MethodPost, "/api/v1/location/check", "garbage", gin.H{"latitude": 1, "longitude": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCardsCRUD(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.signup(t, "carol@example.com")

	w, out := s.do(t, http.MethodGet, "/api/v1/cards", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["cards"])
	assert.Equal(t, false, out["location_enabled"])

	w, out = s.do(t, http.MethodPost, "/api/v1/cards", token, sapphire())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	card := out["card"].(map[string]any)
	cardID := card["id"].(string)
	assert.Equal(t, "Sapphire", card["name"])
	assert.Len(t, card["category_bonuses"], 2)

	update := sapphire()
	update["name"] = "Sapphire Reserve"
	update["id"] = "ignored"
	w, out = s.do(t, http.MethodPut, "/api/v1/cards/"+cardID, token, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, cardID, out["card"].(map[string]any)["id"])
	assert.Equal(t, "Sapphire Reserve", out["card"].(map[string]any)["name"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/location/enable", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, out = s.do(t, http.MethodGet, "/api/v1/cards", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["cards"], 1)
	assert.Equal(t, true, out["location_enabled"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/cards/"+cardID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/cards/"+cardID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPut, "/api/v1/cards/"+cardID, token, sapphire())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCardsAreScopedToUser(t *testing.T) {
	s := newTestServer(t, nil)
	owner := s.signup(t, "owner@example.com")
	other := s.signup(t, "other@example.com")

	_, out := s.do(t, http.MethodPost, "/api/v1/cards", owner, sapphire())
	cardID := out["card"].(map[string]any)["id"].(string)

	w, out := s.do(t, http.MethodGet, "/api/v1/cards", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["cards"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/cards/"+cardID, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddCardValidation(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.signup(t, "dave@example.com")

	tooMany := make([]gin.H, 17)
	for i := range tooMany {
		tooMany[i] = gin.H{"category": "dining", "rate": 1}
	}

	tests := []struct {
		name string
		body gin.H
	}{
		{"blank name", gin.H{"name": "   ", "base_rate": 1}},
		{"negative base rate", gin.H{"name": "X", "base_rate": -1}},
		{"base rate over 100", gin.H{"name": "X", "base_rate": 101}},
		{"blank bonus category", gin.H{"name": "X", "category_bonuses": []gin.H{{"category": " ", "rate": 2}}}},
		{"too many bonuses", gin.H{"name": "X", "category_bonuses": tooMany}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := s.do(t, http.MethodPost, "/api/v1/cards", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, out["error"], "invalid input")
		})
	}
}

func TestCheckLocation(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.signup(t, "erin@example.com")
	point := gin.H{"latitude": diningLat, "longitude": diningLng}

	t.Run("no cards gives null recommendation", func(t *testing.T) {
		w, out := s.do(t, http.MethodPost, "/api/v1/location/check", token, point)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, out["success"])
		assert.Contains(t, out, "recommendation")
		assert.Nil(t, out["recommendation"])
	})

	_, _ = s.do(t, http.MethodPost, "/api/v1/cards", token, gin.H{"name": "Flat", "base_rate": 2})
	_, _ = s.do(t, http.MethodPost, "/api/v1/cards", token, sapphire())

	t.Run("dining bonus wins", func(t *testing.T) {
		w, out := s.do(t, http.MethodPost, "/api/v1/location/check", token, point)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		rec := out["recommendation"].(map[string]any)
		assert.Equal(t, "Sapphire", rec["card"].(map[string]any)["name"])
		assert.Equal(t, float64(3), rec["rate"])
		assert.Equal(t, "dining", rec["merchant"].(map[string]any)["category"])
		assert.NotEmpty(t, rec["all_nearby"])
		assert.Equal(t, diningLat, rec["location"].(map[string]any)["lat"])
	})

	t.Run("nothing nearby gives null recommendation", func(t *testing.T) {
		w, out := s.do(t, http.MethodPost, "/api/v1/location/check", token, gin.H{"latitude": 45.0, "longitude": -90.0})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, out["recommendation"])
	})

	invalid := []struct {
		name string
		body any
	}{
		{"missing longitude", gin.H{"latitude": diningLat}},
		{"zero latitude", gin.H{"latitude": 0, "longitude": diningLng}},
		{"string latitude", gin.H{"latitude": "north", "longitude": diningLng}},
		{"out of range", gin.H{"latitude": 120, "longitude": diningLng}},
		{"bad json", "{"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			w, out := s.do(t, http.MethodPost, "/api/v1/location/check", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, "Invalid location", out["error"])
		})
	}
}

func TestCheckLocationRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1)
	defer limiter.Stop()

	s := newTestServer(t, limiter)
	token := s.signup(t, "frank@example.com")
	point := gin.H{"latitude": diningLat, "longitude": diningLng}

	w, _ := s.do(t, http.MethodPost, "/api/v1/location/check", token, point)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/location/check", token, point)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNearbyMerchants(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.signup(t, "gina@example.com")

	w, out := s.do(t, http.MethodGet, "/api/v1/merchants/nearby?lat=42.1688&lng=-87.9745", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	merchants := out["merchants"].([]any)
	require.NotEmpty(t, merchants)
	assert.Equal(t, geo.DefaultRadiusMiles, out["radius_miles"])

	prev := -1.0
	for _, m := range merchants {
		d := m.(map[string]any)["distance"].(float64)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, geo.DefaultRadiusMiles)
		prev = d
	}

	w, out = s.do(t, http.MethodGet, "/api/v1/merchants/nearby?lat=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid location", out["error"])
}
