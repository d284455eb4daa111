package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authdomain "inboxstats-backend/internal/auth/domain"
	authdto "inboxstats-backend/internal/auth/dto"
	"inboxstats-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubAuth struct {
	usecase.AuthUsecase
	users    map[string]*authdomain.User
	loginErr error
}

func (s *stubAuth) ValidateToken(_ context.Context, token string) (*authdomain.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, usecase.ErrInvalidToken
}

func (s *stubAuth) Login(context.Context, *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &authdto.TokenResponse{AccessToken: "at", RefreshToken: "rt"}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newStubAuth() *stubAuth {
	return &stubAuth{users: map[string]*authdomain.User{
		"good": {ID: "u1", Email: "u1@example.com"},
	}}
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(newStubAuth()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserIDKey))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}

func TestSessionMiddlewareNeverAborts(t *testing.T) {
	r := gin.New()
	r.GET("/x", SessionMiddleware(newStubAuth()), func(c *gin.Context) {
		if user := CurrentUser(c); user != nil {
			c.String(http.StatusOK, user.Email)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	for header, want := range map[string]string{
		"":            "anonymous",
		"Bearer bad":  "anonymous",
		"Bearer good": "u1@example.com",
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Body.String())
	}
}

func TestLoginErrorMapping(t *testing.T) {
	auth := newStubAuth()
	h := NewAuthHandler(auth)
	r := gin.New()
	r.POST("/login", h.Login)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"email":"nope"}`).Code)
	assert.Equal(t, http.StatusOK, post(`{"email":"a@example.com","password":"secret1"}`).Code)

	auth.loginErr = usecase.ErrInvalidCredentials
	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"a@example.com","password":"secret1"}`).Code)

	auth.loginErr = usecase.ErrWrongProvider
	assert.Equal(t, http.StatusConflict, post(`{"email":"a@example.com","password":"secret1"}`).Code)
}
