// internal/handler/cards.go
package handler

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type CardsStorage interface {
	storage.CardStorage
	storage.SettingsStorage
}

type CardHandler struct {
	store CardsStorage
}

func NewCardHandler(store CardsStorage) *CardHandler {
	return &CardHandler{store: store}
}

// === DTO ===

type CategoryBonusRequest struct {
	Category string  `json:"category" validate:"required,notblank"`
	Rate     float64 `json:"rate" validate:"gte=0,lte=100"`
}

// CardRequest: тело POST/PUT. id и user_id из тела игнорируются
type CardRequest struct {
	Name            string                 `json:"name" validate:"required,notblank"`
	Network         string                 `json:"network"`
	Color           string                 `json:"color"`
	BaseRate        float64                `json:"base_rate" validate:"gte=0,lte=100"`
	CategoryBonuses []CategoryBonusRequest `json:"category_bonuses" validate:"max=16,dive"`
}

func (r CardRequest) toDomain() domain.Card {
	bonuses := make([]domain.CategoryBonus, len(r.CategoryBonuses))
	for i, b := range r.CategoryBonuses {
		bonuses[i] = domain.CategoryBonus{Category: b.Category, Rate: b.Rate}
	}
	return domain.Card{
		Name:            r.Name,
		Network:         r.Network,
		Color:           r.Color,
		BaseRate:        r.BaseRate,
		CategoryBonuses: bonuses,
	}
}

func bindCard(c *gin.Context) (CardRequest, bool) {
	var req CardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return req, false
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

// ListCards godoc
// @Summary List the user's cards
// @Tags cards
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 500 {object} map[string]string
// @Router /api/v1/cards [get]
func (h *CardHandler) ListCards(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	cards, err := h.store.ListCards(ctx, userID)
	if err != nil {
		slog.Error("ListCards failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	settings, err := h.store.GetSettings(ctx, userID)
	if err != nil {
		slog.Error("GetSettings failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cards":            cards,
		"location_enabled": settings.LocationEnabled,
	})
}

// AddCard godoc
// @Summary Add a card
// @Tags cards
// @Accept json
// @Produce json
// @Param request body CardRequest true "Card"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/cards [post]
func (h *CardHandler) AddCard(c *gin.Context) {
	req, ok := bindCard(c)
	if !ok {
		return
	}
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	card, err := h.store.InsertCard(c.Request.Context(), userID, req.toDomain())
	if err != nil {
		slog.Error("Failed to add card", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add card"})
		return
	}

	slog.Info("card added", "user_id", userID, "card_id", card.ID)
	c.JSON(http.StatusOK, gin.H{"success": true, "card": card})
}

// UpdateCard godoc
// @Summary Replace a card's fields
// @Tags cards
// @Accept json
// @Produce json
// @Param id path string true "Card ID"
// @Param request body CardRequest true "Card"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/cards/{id} [put]
func (h *CardHandler) UpdateCard(c *gin.Context) {
	req, ok := bindCard(c)
	if !ok {
		return
	}
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	cardID := c.Param("id")

	card, err := h.store.UpdateCard(c.Request.Context(), userID, cardID, req.toDomain())
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to update card", "error", err, "user_id", userID, "card_id", cardID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update card"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "card": card})
}

// DeleteCard godoc
// @Summary Delete a card
// @Tags cards
// @Param id path string true "Card ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string
// @Router /api/v1/cards/{id} [delete]
func (h *CardHandler) DeleteCard(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	cardID := c.Param("id")

	err := h.store.DeleteCard(c.Request.Context(), userID, cardID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to delete card", "error", err, "user_id", userID, "card_id", cardID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
