package usecase

import (
	"context"
	"errors"

	authdomain "inboxstats-backend/internal/auth/domain"
	authdto "inboxstats-backend/internal/auth/dto"
	"inboxstats-backend/pkg/imap"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongProvider      = errors.New("account uses a different sign-in method")
	ErrMailboxMismatch    = errors.New("gmail account does not match the signed-in google account")
)

// AuthUsecase resolves sessions and manages accounts.
type AuthUsecase interface {
	Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	GoogleSignIn(ctx context.Context, req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error)
	IMAPLogin(ctx context.Context, req *authdto.IMAPLoginRequest) (*authdto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateToken(ctx context.Context, token string) (*authdomain.User, error)
	RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMTokenRequest) error
	UnregisterFCMToken(ctx context.Context, userID, token string) error
}

// GmailVerifier checks Gmail OAuth tokens and reports the mailbox address.
type GmailVerifier interface {
	ValidateToken(ctx context.Context, accessToken, refreshToken string) (string, error)
}

// IMAPVerifier checks IMAP credentials with a login round trip.
type IMAPVerifier interface {
	ValidateCredentials(ctx context.Context, creds imap.Credentials) error
}
