package delivery

import (
	"context"
	"net/http"
	"strconv"
	"time"

	authdelivery "inboxstats-backend/internal/auth/delivery"
	statsdto "inboxstats-backend/internal/stats/dto"
	"inboxstats-backend/internal/stats/usecase"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type StatsHandler struct {
	loadUsecase usecase.LoadUsecase
	maxDuration time.Duration
}

func NewStatsHandler(loadUsecase usecase.LoadUsecase, maxDuration time.Duration) *StatsHandler {
	return &StatsHandler{
		loadUsecase: loadUsecase,
		maxDuration: maxDuration,
	}
}

// LoadEmails backfills the caller's mailbox into Tinybird. Expects the
// session middleware; a missing session is answered with 200 and an error body.
func (h *StatsHandler) LoadEmails(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, statsdto.ErrorResponse{Error: usecase.ErrNotAuthenticated.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.maxDuration)
		defer cancel()
	}

	resp, err := h.loadUsecase.PublishAllEmails(ctx, user)
	if err != nil {
		log.WithError(err).WithField("owner", user.Email).Error("[Stats] Load failed")
		c.JSON(http.StatusInternalServerError, statsdto.ErrorResponse{Error: "Failed to load emails"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *StatsHandler) ListRuns(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, statsdto.ErrorResponse{Error: "user not found in context"})
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.loadUsecase.ListRuns(c.Request.Context(), user.ID, limit)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("[Stats] Failed to list load runs")
		c.JSON(http.StatusInternalServerError, statsdto.ErrorResponse{Error: "Failed to list load runs"})
		return
	}

	c.JSON(http.StatusOK, statsdto.LoadRunsResponse{Runs: runs})
}
