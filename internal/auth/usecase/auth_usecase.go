package usecase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	authdomain "inboxstats-backend/internal/auth/domain"
	authdto "inboxstats-backend/internal/auth/dto"
	"inboxstats-backend/internal/auth/repository"
	"inboxstats-backend/pkg/config"
	"inboxstats-backend/pkg/imap"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

type authUsecase struct {
	userRepo     repository.UserRepository
	fcmRepo      repository.FCMTokenRepository
	gmail        GmailVerifier
	imap         IMAPVerifier
	config       *config.Config
	httpClient   *http.Client
	tokenInfoURL string
}

// Option customises the usecase, mostly for tests.
type Option func(*authUsecase)

func WithTokenInfoURL(u string) Option {
	return func(a *authUsecase) { a.tokenInfoURL = u }
}

func NewAuthUsecase(userRepo repository.UserRepository, fcmRepo repository.FCMTokenRepository, gmail GmailVerifier, imapVerifier IMAPVerifier, cfg *config.Config, opts ...Option) AuthUsecase {
	u := &authUsecase{
		userRepo:     userRepo,
		fcmRepo:      fcmRepo,
		gmail:        gmail,
		imap:         imapVerifier,
		config:       cfg,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		tokenInfoURL: googleTokenInfoURL,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *authUsecase) Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	user, err := u.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.Provider != authdomain.ProviderEmail {
		return nil, ErrWrongProvider
	}
	if !repository.CheckPasswordHash(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	existing, err := u.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := repository.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &authdomain.User{
		Email:    req.Email,
		Password: hashedPassword,
		Name:     req.Name,
		Provider: authdomain.ProviderEmail,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return u.generateTokens(ctx, user)
}

// GoogleTokenInfo represents the response from Google's tokeninfo endpoint
type GoogleTokenInfo struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified string `json:"email_verified"` // Google returns this as string "true" or "false"
	Sub           string `json:"sub"`
}

func (u *authUsecase) GoogleSignIn(ctx context.Context, req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error) {
	tokenInfo, err := u.verifyIDToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	// The Gmail tokens must belong to the same account as the ID token.
	mailbox, err := u.gmail.ValidateToken(ctx, req.AccessToken, req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("gmail access rejected: %w", err)
	}
	if !strings.EqualFold(mailbox, tokenInfo.Email) {
		return nil, ErrMailboxMismatch
	}

	user, err := u.userRepo.FindByEmail(ctx, tokenInfo.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &authdomain.User{
			Email:        tokenInfo.Email,
			Name:         tokenInfo.Name,
			AvatarURL:    tokenInfo.Picture,
			Provider:     authdomain.ProviderGoogle,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
		}
		if err := u.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
	} else {
		user.Name = tokenInfo.Name
		user.AvatarURL = tokenInfo.Picture
		user.Provider = authdomain.ProviderGoogle
		user.AccessToken = req.AccessToken
		if req.RefreshToken != "" {
			user.RefreshToken = req.RefreshToken
		}
		if err := u.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) verifyIDToken(ctx context.Context, idToken string) (*GoogleTokenInfo, error) {
	endpoint := u.tokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Google token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to verify Google token: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tokenInfo GoogleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, fmt.Errorf("failed to decode Google token info: %w", err)
	}

	if tokenInfo.EmailVerified != "true" {
		return nil, fmt.Errorf("google email is not verified")
	}
	return &tokenInfo, nil
}

func (u *authUsecase) IMAPLogin(ctx context.Context, req *authdto.IMAPLoginRequest) (*authdto.TokenResponse, error) {
	username := req.Username
	if username == "" {
		username = req.Email
	}
	creds := imap.Credentials{
		Host:     req.Host,
		Port:     req.Port,
		Username: username,
		Password: req.Password,
	}
	if err := u.imap.ValidateCredentials(ctx, creds); err != nil {
		log.WithError(err).WithField("host", req.Host).Warn("[Auth] IMAP login rejected")
		return nil, ErrInvalidCredentials
	}

	user, err := u.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &authdomain.User{Email: req.Email, Name: req.Email}
	} else if user.Provider != authdomain.ProviderIMAP {
		return nil, ErrWrongProvider
	}

	user.Provider = authdomain.ProviderIMAP
	user.IMAPHost = creds.Host
	user.IMAPPort = creds.Port
	user.IMAPUsername = creds.Username
	user.IMAPPassword = creds.Password

	if user.ID == "" {
		err = u.userRepo.Create(ctx, user)
	} else {
		err = u.userRepo.Update(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error) {
	claims, err := u.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}

	storedToken, err := u.userRepo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if storedToken == nil || storedToken.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// Rotate: the presented refresh token is single use.
	if err := u.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) Logout(ctx context.Context, refreshToken string) error {
	return u.userRepo.DeleteRefreshToken(ctx, refreshToken)
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	claims, err := u.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (u *authUsecase) RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMTokenRequest) error {
	return u.fcmRepo.SaveToken(ctx, userID, req.Token, req.DeviceInfo)
}

func (u *authUsecase) UnregisterFCMToken(ctx context.Context, userID, token string) error {
	return u.fcmRepo.DeleteToken(ctx, userID, token)
}

func (u *authUsecase) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (u *authUsecase) generateTokens(ctx context.Context, user *authdomain.User) (*authdto.TokenResponse, error) {
	now := time.Now()

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     now.Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     now.Unix(),
	}).SignedString([]byte(u.config.JWTSecret))
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"token_id": uuid.New().String(),
		"exp":      now.Add(u.config.JWTRefreshExpiry).Unix(),
		"iat":      now.Unix(),
	}).SignedString([]byte(u.config.JWTSecret))
	if err != nil {
		return nil, err
	}

	if err := u.userRepo.SaveRefreshToken(ctx, &authdomain.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: now.Add(u.config.JWTRefreshExpiry),
	}); err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}
