package api

import (
	"net/http"

	"inboxstats-backend/internal/auth/delivery"
	authUsecase "inboxstats-backend/internal/auth/usecase"
	statsDelivery "inboxstats-backend/internal/stats/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, statsHandler *statsDelivery.StatsHandler) {
	authHandler := delivery.NewAuthHandler(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/imap", authHandler.IMAPLogin)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Tinybird backfill. The load route answers unauthenticated callers itself.
		tinybird := api.Group("/user/stats/tinybird")
		{
			tinybird.POST("/load", delivery.SessionMiddleware(authUsecase), statsHandler.LoadEmails)
			tinybird.GET("/load/runs", delivery.AuthMiddleware(authUsecase), statsHandler.ListRuns)
		}
	}
}
