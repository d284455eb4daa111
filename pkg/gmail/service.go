package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const user = "me"

// TokenUpdateFunc is called when the oauth2 token source hands out a new token.
type TokenUpdateFunc func(token *oauth2.Token) error

type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.WithError(err).Warn("[Gmail] Failed to persist refreshed token")
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// GetGmailService creates Gmail service with user's access token
func (s *Service) GetGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// NewClient builds a mail client for one user's mailbox.
func (s *Service) NewClient(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*Client, error) {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}
	return NewClientFromService(srv), nil
}

// ValidateToken validates the access token by making a simple API call
func (s *Service) ValidateToken(ctx context.Context, accessToken, refreshToken string) (string, error) {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, nil)
	if err != nil {
		return "", err
	}

	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", errors.New("invalid or expired access token")
	}

	return profile.EmailAddress, nil
}

// Client lists and fetches messages of a single mailbox. Calls go through a
// circuit breaker so a mailbox that keeps failing stops hammering the API.
type Client struct {
	srv *gmail.Service
	cb  *gobreaker.CircuitBreaker
}

func NewClientFromService(srv *gmail.Service) *Client {
	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &Client{
		srv: srv,
		cb:  gobreaker.NewCircuitBreaker(settings),
	}
}

// ListMessages returns one page of message refs, newest first.
func (c *Client) ListMessages(ctx context.Context, query statsdomain.ListQuery) (*statsdomain.MessagePage, error) {
	call := c.srv.Users.Messages.List(user)
	if q := BuildQuery(query.Before); q != "" {
		call = call.Q(q)
	}
	if query.MaxResults > 0 {
		call = call.MaxResults(query.MaxResults)
	}
	if query.PageToken != "" {
		call = call.PageToken(query.PageToken)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}
	resp := res.(*gmail.ListMessagesResponse)

	page := &statsdomain.MessagePage{
		Messages:      make([]statsdomain.MessageRef, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, statsdomain.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

// GetMessage fetches and parses a full message. It returns nil, nil when the
// message no longer exists.
func (c *Client) GetMessage(ctx context.Context, id string) (*statsdomain.ParsedMessage, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if isNotFound(err) {
			return (*gmail.Message)(nil), nil
		}
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
	}

	msg := res.(*gmail.Message)
	if msg == nil {
		log.WithField("message_id", id).Debug("[Gmail] Message disappeared before fetch")
		return nil, nil
	}
	return ParseMessage(msg), nil
}

// Close is a no-op; the HTTP client is owned by the oauth2 transport.
func (c *Client) Close() error {
	return nil
}

// countsAsHealthy keeps quota errors and caller cancellations from opening the breaker.
func countsAsHealthy(err error) bool {
	return err == nil || IsRateLimited(err) || isNotFound(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRateLimited reports whether err is a Gmail quota rejection.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// BuildQuery returns the search filter restricting a listing to messages
// older than beforeMs (epoch milliseconds). Gmail's before: operator takes
// epoch seconds; one second is added so the boundary message is included.
func BuildQuery(beforeMs int64) string {
	if beforeMs <= 0 {
		return ""
	}
	return fmt.Sprintf("before:%d", beforeMs/1000+1)
}
