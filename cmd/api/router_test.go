package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "inboxstats-backend/internal/auth/domain"
	authUsecase "inboxstats-backend/internal/auth/usecase"
	statsdomain "inboxstats-backend/internal/stats/domain"
	statsdto "inboxstats-backend/internal/stats/dto"
	"inboxstats-backend/pkg/config"

	"github.com/stretchr/testify/assert"
)

type rejectAll struct {
	authUsecase.AuthUsecase
}

func (rejectAll) ValidateToken(context.Context, string) (*authdomain.User, error) {
	return nil, authUsecase.ErrInvalidToken
}

type noopLoad struct{}

func (noopLoad) PublishAllEmails(context.Context, *authdomain.User) (*statsdto.LoadResponse, error) {
	return &statsdto.LoadResponse{}, nil
}

func (noopLoad) ListRuns(context.Context, string, int) ([]*statsdomain.LoadRun, error) {
	return nil, nil
}

func TestRoutes(t *testing.T) {
	r := NewHandler(rejectAll{}, noopLoad{}, &config.Config{}).Engine()

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/health", http.StatusOK, `{"status":"ok"}`},
		{http.MethodPost, "/api/user/stats/tinybird/load", http.StatusOK, `{"error":"Not authenticated"}`},
		{http.MethodGet, "/api/user/stats/tinybird/load/runs", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/auth/me", http.StatusUnauthorized, ""},
		{http.MethodOptions, "/api/user/stats/tinybird/load", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", "http://localhost:3000")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}
