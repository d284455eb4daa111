// Package fcm sends push notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const webIcon = "/icon-192.svg"

type Client struct {
	messaging *messaging.Client
}

// NewClient initialises Firebase from a service account file. An empty path
// uses application default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	m, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Info("[FCM] Client initialized")
	return &Client{messaging: m}, nil
}

type NotificationData struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendToDevices multicasts n and returns the tokens FCM reported as no
// longer valid. Transient per-token failures are logged but not returned.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, n NotificationData) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	response, err := c.messaging.SendEachForMulticast(ctx, buildMulticast(tokens, n))
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}

	log.Infof("[FCM] Multicast sent: %d success, %d failures", response.SuccessCount, response.FailureCount)
	return staleTokens(tokens, response.Responses), nil
}

func buildMulticast(tokens []string, n NotificationData) *messaging.MulticastMessage {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  webIcon,
			},
		},
	}
	if link := n.Data["click_action"]; link != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: link}
	}
	return msg
}

func staleTokens(tokens []string, responses []*messaging.SendResponse) []string {
	var stale []string
	for i, resp := range responses {
		if resp == nil || resp.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
			stale = append(stale, tokens[i])
			continue
		}
		log.WithError(resp.Error).Warnf("[FCM] Failed to send to token %s...", truncate(tokens[i], 20))
	}
	return stale
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
