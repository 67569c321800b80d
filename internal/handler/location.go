// internal/handler/location.go
package handler

import (
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type LocationHandler struct {
	service  *recommend.Service
	settings storage.SettingsStorage
}

func NewLocationHandler(service *recommend.Service, settings storage.SettingsStorage) *LocationHandler {
	return &LocationHandler{service: service, settings: settings}
}

// CheckLocationRequest: координаты 0 считаются непереданными
type CheckLocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
}

type nearbyQuery struct {
	Lat float64 `form:"lat" validate:"required,latitude"`
	Lng float64 `form:"lng" validate:"required,longitude"`
}

func invalidLocation(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid location"})
}

func (h *LocationHandler) EnableLocation(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.settings.SetLocationEnabled(c.Request.Context(), userID, true); err != nil {
		slog.Error("EnableLocation failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckLocation godoc
// @Summary Recommend the best card for the current location
// @Tags location
// @Accept json
// @Produce json
// @Param request body CheckLocationRequest true "Coordinates"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]string
// @Router /api/v1/location/check [post]
func (h *LocationHandler) CheckLocation(c *gin.Context) {
	var req CheckLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidLocation(c)
		return
	}
	if err := validateStruct(req); err != nil {
		slog.Debug("CheckLocation: rejected", "error", err)
		invalidLocation(c)
		return
	}

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rec, err := h.service.CheckLocation(c.Request.Context(), userID, req.Latitude, req.Longitude)
	if err != nil {
		slog.Error("CheckLocation failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	// rec == nil сериализуется в null: карт нет или рядом ничего не нашлось
	c.JSON(http.StatusOK, gin.H{"success": true, "recommendation": rec})
}

// NearbyMerchants godoc
// @Summary List catalog merchants around a point
// @Tags location
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/v1/merchants/nearby [get]
func (h *LocationHandler) NearbyMerchants(c *gin.Context) {
	var q nearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidLocation(c)
		return
	}
	if err := validateStruct(q); err != nil {
		invalidLocation(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"merchants":    h.service.Nearby(q.Lat, q.Lng),
		"radius_miles": h.service.RadiusMiles(),
	})
}
