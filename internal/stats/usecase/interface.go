package usecase

import (
	"context"
	"errors"

	authdomain "inboxstats-backend/internal/auth/domain"
	statsdomain "inboxstats-backend/internal/stats/domain"
	statsdto "inboxstats-backend/internal/stats/dto"
	"inboxstats-backend/pkg/tinybird"
)

var (
	ErrNotAuthenticated    = errors.New("Not authenticated")
	ErrUnsupportedProvider = errors.New("account has no linked mailbox provider")
	ErrMailboxNotLinked    = errors.New("mailbox access token missing, sign in with Google again")
)

// MailClient pages through a single mailbox.
type MailClient interface {
	ListMessages(ctx context.Context, query statsdomain.ListQuery) (*statsdomain.MessagePage, error)
	// GetMessage returns nil, nil when the provider no longer has the message.
	GetMessage(ctx context.Context, id string) (*statsdomain.ParsedMessage, error)
	Close() error
}

// MailClientFactory opens the mailbox belonging to a user.
type MailClientFactory interface {
	NewMailClient(ctx context.Context, user *authdomain.User) (MailClient, error)
}

// Ingestor is the analytics store the records are published to.
type Ingestor interface {
	PublishEmails(ctx context.Context, records []statsdomain.EmailRecord) (*tinybird.PublishResult, error)
	LastEmail(ctx context.Context, ownerEmail string, direction tinybird.Direction) (*statsdomain.EmailRecord, error)
}

// BatchNotifier announces published batches to other services.
type BatchNotifier interface {
	NotifyBatchPublished(ctx context.Context, event *statsdomain.BatchPublishedEvent) error
}

// RunNotifier tells the user a run has ended.
type RunNotifier interface {
	NotifyRunFinished(ctx context.Context, run *statsdomain.LoadRun)
}

type LoadUsecase interface {
	// PublishAllEmails backfills the user's mailbox into the analytics store.
	PublishAllEmails(ctx context.Context, user *authdomain.User) (*statsdto.LoadResponse, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]*statsdomain.LoadRun, error)
}
