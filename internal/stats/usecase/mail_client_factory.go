package usecase

import (
	"context"

	authdomain "inboxstats-backend/internal/auth/domain"
	authrepo "inboxstats-backend/internal/auth/repository"
	"inboxstats-backend/pkg/gmail"
	"inboxstats-backend/pkg/imap"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type mailClientFactory struct {
	gmailService *gmail.Service
	imapService  *imap.Service
	userRepo     authrepo.UserRepository
}

// NewMailClientFactory picks the provider client from the user's sign-in method.
func NewMailClientFactory(gmailService *gmail.Service, imapService *imap.Service, userRepo authrepo.UserRepository) MailClientFactory {
	return &mailClientFactory{
		gmailService: gmailService,
		imapService:  imapService,
		userRepo:     userRepo,
	}
}

func (f *mailClientFactory) NewMailClient(ctx context.Context, user *authdomain.User) (MailClient, error) {
	switch user.Provider {
	case authdomain.ProviderGoogle:
		if user.AccessToken == "" {
			return nil, ErrMailboxNotLinked
		}
		client, err := f.gmailService.NewClient(ctx, user.AccessToken, user.RefreshToken, f.persistToken(ctx, user.ID))
		if err != nil {
			return nil, err
		}
		return client, nil

	case authdomain.ProviderIMAP:
		client, err := f.imapService.NewClient(ctx, imap.Credentials{
			Host:     user.IMAPHost,
			Port:     user.IMAPPort,
			Username: user.IMAPUsername,
			Password: user.IMAPPassword,
		})
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, ErrUnsupportedProvider
	}
}

// persistToken saves tokens the OAuth source refreshed during a run.
func (f *mailClientFactory) persistToken(ctx context.Context, userID string) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		if err := f.userRepo.UpdateGmailTokens(context.WithoutCancel(ctx), userID, token.AccessToken, token.RefreshToken); err != nil {
			return err
		}
		log.WithField("user", userID).Info("[Gmail] Saved refreshed token")
		return nil
	}
}
