package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	authdomain "inboxstats-backend/internal/auth/domain"
	statsdomain "inboxstats-backend/internal/stats/domain"
	statsdto "inboxstats-backend/internal/stats/dto"
	"inboxstats-backend/internal/stats/repository"
	"inboxstats-backend/pkg/config"
	"inboxstats-backend/pkg/imap"
	"inboxstats-backend/pkg/parallel"
	"inboxstats-backend/pkg/retry"
	"inboxstats-backend/pkg/tinybird"
	"inboxstats-backend/pkg/unsubscribe"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	fetchConcurrency = 10
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	notifyTimeout    = 10 * time.Second
)

type loadUsecase struct {
	clients       MailClientFactory
	ingestor      Ingestor
	runRepo       repository.LoadRunRepository
	batchNotifier BatchNotifier
	runNotifier   RunNotifier
	pageSize      int64
	retryPolicy   retry.Policy
}

// NewLoadUsecase wires the backfill. batchNotifier and runNotifier may be nil.
func NewLoadUsecase(clients MailClientFactory, ingestor Ingestor, runRepo repository.LoadRunRepository, batchNotifier BatchNotifier, runNotifier RunNotifier, cfg *config.Config) LoadUsecase {
	pageSize := cfg.LoadPageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	return &loadUsecase{
		clients:       clients,
		ingestor:      ingestor,
		runRepo:       runRepo,
		batchNotifier: batchNotifier,
		runNotifier:   runNotifier,
		pageSize:      pageSize,
		retryPolicy:   retry.Constant(cfg.LoadRetryDelay, cfg.LoadMaxRetries),
	}
}

func (u *loadUsecase) PublishAllEmails(ctx context.Context, user *authdomain.User) (*statsdto.LoadResponse, error) {
	run := &statsdomain.LoadRun{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		OwnerEmail: user.Email,
		Status:     statsdomain.LoadRunRunning,
		StartedAt:  time.Now(),
	}
	if err := u.runRepo.Create(ctx, run); err != nil {
		log.WithError(err).WithField("owner", user.Email).Warn("[Stats] Failed to record load run")
	}

	pages, err := u.load(ctx, user, run)
	u.finishRun(ctx, run, pages, err)
	if err != nil {
		return nil, err
	}

	return &statsdto.LoadResponse{Pages: pages}, nil
}

func (u *loadUsecase) load(ctx context.Context, user *authdomain.User, run *statsdomain.LoadRun) (int, error) {
	client, err := u.clients.NewMailClient(ctx, user)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Debug("[Stats] Failed to close mail client")
		}
	}()

	before, err := u.lowerBound(ctx, user.Email)
	if err != nil {
		return 0, err
	}
	if before > 0 {
		run.Before = &before
	}

	logger := log.WithField("owner", user.Email)
	logger.WithField("before", before).Info("[Stats] Loading emails")

	var (
		pageToken string
		pages     int
	)
	for {
		page, err := retry.Do(ctx, u.retryPolicy, func(ctx context.Context) (*statsdomain.MessagePage, error) {
			page, err := u.saveBatch(ctx, client, user.Email, pageToken, before)
			if err != nil && !isRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return page, err
		}, func(err error, wait time.Duration) {
			logger.WithError(err).WithField("page", pages).Warnf("[Stats] Batch failed, retrying in %s", wait)
		})
		if err != nil {
			logger.WithError(err).WithField("page", pages).Error("[Stats] Giving up on batch")
			return pages, err
		}

		pageToken = page.NextPageToken
		// A short page is the last one. Without a cursor there is nothing further to ask for.
		if int64(len(page.Messages)) < u.pageSize || pageToken == "" {
			break
		}

		pages++
		logger.WithField("page", pages).Debug("[Stats] Loaded page")
	}

	logger.WithField("pages", pages).Info("[Stats] Completed loading emails")
	u.recordNewest(ctx, user.Email, run)
	return pages, nil
}

// recordNewest stores the timestamp of the most recent published record on run.
// A failed lookup leaves it unset.
func (u *loadUsecase) recordNewest(ctx context.Context, owner string, run *statsdomain.LoadRun) {
	newest, err := u.ingestor.LastEmail(ctx, owner, tinybird.Newest)
	if err != nil {
		log.WithError(err).WithField("owner", owner).Warn("[Stats] Failed to look up newest email")
		return
	}
	if newest != nil {
		run.Newest = &newest.Timestamp
	}
}

// isRetryable reports whether a failed batch may succeed when tried again.
// Rejected payloads, stale cursors and an open breaker will not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, imap.ErrInvalidCursor) {
		return false
	}
	var apiErr *tinybird.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// lowerBound returns the timestamp of the oldest record already published for
// owner, or 0 when there is none.
func (u *loadUsecase) lowerBound(ctx context.Context, owner string) (int64, error) {
	oldest, err := u.ingestor.LastEmail(ctx, owner, tinybird.Oldest)
	if err != nil {
		return 0, fmt.Errorf("failed to look up oldest email: %w", err)
	}
	if oldest == nil {
		return 0, nil
	}
	return oldest.Timestamp, nil
}

// saveBatch publishes one listing page and returns it so the caller can
// advance the cursor.
func (u *loadUsecase) saveBatch(ctx context.Context, client MailClient, owner, pageToken string, before int64) (*statsdomain.MessagePage, error) {
	page, err := client.ListMessages(ctx, statsdomain.ListQuery{
		Before:     before,
		PageToken:  pageToken,
		MaxResults: u.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	refs := make([]statsdomain.MessageRef, 0, len(page.Messages))
	for _, ref := range page.Messages {
		if ref.ID != "" && ref.ThreadID != "" {
			refs = append(refs, ref)
		}
	}

	records, err := parallel.MapCompact(ctx, refs, fetchConcurrency, func(ctx context.Context, ref statsdomain.MessageRef) (statsdomain.EmailRecord, bool, error) {
		msg, err := client.GetMessage(ctx, ref.ID)
		if err != nil {
			return statsdomain.EmailRecord{}, false, fmt.Errorf("failed to get message %s: %w", ref.ID, err)
		}
		if msg == nil {
			return statsdomain.EmailRecord{}, false, nil
		}
		return buildRecord(owner, msg), true, nil
	})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return page, nil
	}

	result, err := u.ingestor.PublishEmails(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to publish emails: %w", err)
	}
	log.WithFields(log.Fields{
		"owner":       owner,
		"count":       len(records),
		"quarantined": result.QuarantinedRows,
	}).Debug("[Stats] Published batch")

	u.notifyBatch(ctx, owner, records)
	return page, nil
}

func (u *loadUsecase) notifyBatch(ctx context.Context, owner string, records []statsdomain.EmailRecord) {
	if u.batchNotifier == nil {
		return
	}

	oldest := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp < oldest {
			oldest = r.Timestamp
		}
	}

	event := &statsdomain.BatchPublishedEvent{
		BatchID:     uuid.New().String(),
		OwnerEmail:  owner,
		Count:       len(records),
		OldestAt:    oldest,
		PublishedAt: time.Now(),
	}
	if err := u.batchNotifier.NotifyBatchPublished(ctx, event); err != nil {
		log.WithError(err).WithField("owner", owner).Warn("[Stats] Failed to announce batch")
	}
}

func (u *loadUsecase) finishRun(ctx context.Context, run *statsdomain.LoadRun, pages int, runErr error) {
	// The request context may already be past its deadline here.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	now := time.Now()
	run.Pages = pages
	run.FinishedAt = &now
	run.Status = statsdomain.LoadRunCompleted
	if runErr != nil {
		run.Status = statsdomain.LoadRunFailed
		run.Error = runErr.Error()
	}

	if err := u.runRepo.Update(ctx, run); err != nil {
		log.WithError(err).WithField("run", run.ID).Warn("[Stats] Failed to update load run")
	}
	if u.runNotifier != nil {
		u.runNotifier.NotifyRunFinished(ctx, run)
	}
}

func (u *loadUsecase) ListRuns(ctx context.Context, userID string, limit int) ([]*statsdomain.LoadRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	return u.runRepo.ListByUser(ctx, userID, limit)
}

func buildRecord(owner string, msg *statsdomain.ParsedMessage) statsdomain.EmailRecord {
	to := msg.Headers.To
	if to == "" {
		to = statsdomain.MissingRecipient
	}

	record := statsdomain.EmailRecord{
		OwnerEmail:     owner,
		ThreadID:       msg.ThreadID,
		GmailMessageID: msg.ID,
		From:           msg.Headers.From,
		To:             to,
		Subject:        msg.Headers.Subject,
		Timestamp:      messageTimestamp(msg),
		Read:           !msg.HasLabel(statsdomain.LabelUnread),
		Sent:           msg.HasLabel(statsdomain.LabelSent),
		Draft:          msg.HasLabel(statsdomain.LabelDraft),
		Inbox:          msg.HasLabel(statsdomain.LabelInbox),
		SizeEstimate:   msg.SizeEstimate,
	}
	if msg.TextHTML != "" {
		record.UnsubscribeLink = unsubscribe.FindLink(msg.TextHTML)
	}
	return record
}

// messageTimestamp prefers the Date header and falls back to the provider's
// receive time.
func messageTimestamp(msg *statsdomain.ParsedMessage) int64 {
	if msg.Headers.Date != "" {
		if t, err := mail.ParseDate(msg.Headers.Date); err == nil {
			return t.UnixMilli()
		}
	}
	if msg.InternalDate.IsZero() {
		return 0
	}
	return msg.InternalDate.UnixMilli()
}
