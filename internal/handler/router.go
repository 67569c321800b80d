// internal/handler/router.go
package handler

import (
	"card-recommender/internal/auth"
	"card-recommender/internal/middleware"
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage"
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Store   storage.Storage
	Tokens  *auth.TokenService
	Service *recommend.Service
	Limiter *middleware.RateLimiter // nil: без ограничения
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := NewAuthHandler(d.Store, d.Tokens)
	cardHandler := NewCardHandler(d.Store)
	locationHandler := NewLocationHandler(d.Service, d.Store)
	authMiddleware := middleware.NewAuthMiddleware(d.Tokens)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/signup", authHandler.Signup)
	v1.POST("/auth/login", authHandler.Login)

	protected := v1.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/user", authHandler.CurrentUser)

		protected.GET("/cards", cardHandler.ListCards)
		protected.POST("/cards", cardHandler.AddCard)
		protected.PUT("/cards/:id", cardHandler.UpdateCard)
		protected.DELETE("/cards/:id", cardHandler.DeleteCard)

		protected.POST("/location/enable", locationHandler.EnableLocation)
		protected.GET("/merchants/nearby", locationHandler.NearbyMerchants)

		check := []gin.HandlerFunc{locationHandler.CheckLocation}
		if d.Limiter != nil {
			check = append([]gin.HandlerFunc{d.Limiter.Middleware()}, check...)
		}
		protected.POST("/location/check", check...)
	}

	return router
}
