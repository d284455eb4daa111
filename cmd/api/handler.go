package api

import (
	"net/http"

	authUsecase "inboxstats-backend/internal/auth/usecase"
	statsDelivery "inboxstats-backend/internal/stats/delivery"
	statsUsecase "inboxstats-backend/internal/stats/usecase"
	"inboxstats-backend/pkg/config"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	authUsecase  authUsecase.AuthUsecase
	statsHandler *statsDelivery.StatsHandler
	config       *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, loadUc statsUsecase.LoadUsecase, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase:  authUc,
		statsHandler: statsDelivery.NewStatsHandler(loadUc, cfg.LoadMaxDuration),
		config:       cfg,
	}
}

// Engine builds the router with middleware and routes attached.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	SetupRoutes(r, h.authUsecase, h.statsHandler)
	return r
}

func (h *Handler) Start(addr string) error {
	return h.Engine().Run(addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("[HTTP] Request handled")
	}
}
