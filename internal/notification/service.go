package notification

import (
	"context"
	"fmt"
	"strconv"

	authrepo "inboxstats-backend/internal/auth/repository"
	statsdomain "inboxstats-backend/internal/stats/domain"
	"inboxstats-backend/pkg/fcm"

	log "github.com/sirupsen/logrus"
)

// Sender delivers a push notification to device tokens and returns the
// tokens that were rejected.
type Sender interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// Service pushes load run results to the user's registered devices.
type Service struct {
	fcmRepo authrepo.FCMTokenRepository
	sender  Sender
}

func NewService(fcmRepo authrepo.FCMTokenRepository, sender Sender) *Service {
	return &Service{
		fcmRepo: fcmRepo,
		sender:  sender,
	}
}

// NotifyRunFinished sends one push per finished run. Failures are logged only.
func (s *Service) NotifyRunFinished(ctx context.Context, run *statsdomain.LoadRun) {
	logger := log.WithFields(log.Fields{"user": run.UserID, "run": run.ID})

	tokens, err := s.fcmRepo.GetTokensByUserID(ctx, run.UserID)
	if err != nil {
		logger.WithError(err).Error("[FCM] Error getting FCM tokens")
		return
	}
	if len(tokens) == 0 {
		logger.Debug("[FCM] No tokens found, skipping push notification")
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := s.sender.SendToDevices(ctx, tokenStrings, buildNotification(run))
	if err != nil {
		logger.WithError(err).Error("[FCM] Error sending notifications")
		return
	}
	logger.Infof("[FCM] Successfully sent to %d devices", len(tokenStrings)-len(failedTokens))

	if len(failedTokens) > 0 {
		logger.Infof("[FCM] Cleaning up %d failed tokens", len(failedTokens))
		if err := s.fcmRepo.DeleteTokens(ctx, failedTokens); err != nil {
			logger.WithError(err).Warn("[FCM] Failed to delete stale tokens")
		}
	}
}

func buildNotification(run *statsdomain.LoadRun) fcm.NotificationData {
	n := fcm.NotificationData{
		Data: map[string]string{
			"type":         "load_run",
			"runId":        run.ID,
			"status":       string(run.Status),
			"pages":        strconv.Itoa(run.Pages),
			"click_action": "/stats",
		},
	}

	if run.Status == statsdomain.LoadRunFailed {
		n.Title = "Mailbox import failed"
		n.Body = run.Error
		if n.Body == "" {
			n.Body = "The import stopped before finishing"
		}
		return n
	}

	n.Title = "Mailbox import finished"
	n.Body = fmt.Sprintf("%s: %d full pages imported", run.OwnerEmail, run.Pages)
	return n
}
