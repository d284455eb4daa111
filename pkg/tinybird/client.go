// Package tinybird is a minimal client for the Tinybird Events and Pipes APIs.
package tinybird

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL    = "https://api.tinybird.co"
	emailDataSource   = "email"
	lastEmailPipeName = "get_last_email"
)

// Direction selects which end of a user's history LastEmail returns.
type Direction string

const (
	Oldest Direction = "oldest"
	Newest Direction = "newest"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tinybird: status %d: %s", e.StatusCode, e.Body)
}

// PublishResult is the Events API acknowledgement.
type PublishResult struct {
	SuccessfulRows  int `json:"successful_rows"`
	QuarantinedRows int `json:"quarantined_rows"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublishEmails appends records to the email data source as NDJSON.
func (c *Client) PublishEmails(ctx context.Context, records []statsdomain.EmailRecord) (*PublishResult, error) {
	if len(records) == 0 {
		return &PublishResult{}, nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", records[i].GmailMessageID, err)
		}
	}

	endpoint := c.baseURL + "/v0/events?" + url.Values{"name": {emailDataSource}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	var result PublishResult
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("failed to publish %d emails: %w", len(records), err)
	}

	if result.QuarantinedRows > 0 {
		log.WithFields(log.Fields{
			"successful":  result.SuccessfulRows,
			"quarantined": result.QuarantinedRows,
		}).Warn("[Tinybird] Some rows were quarantined")
	}

	return &result, nil
}

type pipeResponse struct {
	Data []statsdomain.EmailRecord `json:"data"`
}

// LastEmail returns the oldest or newest record stored for ownerEmail, or nil
// when the owner has no records yet.
func (c *Client) LastEmail(ctx context.Context, ownerEmail string, direction Direction) (*statsdomain.EmailRecord, error) {
	params := url.Values{
		"ownerEmail": {ownerEmail},
		"direction":  {string(direction)},
	}
	endpoint := fmt.Sprintf("%s/v0/pipes/%s.json?%s", c.baseURL, lastEmailPipeName, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp pipeResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query %s emails: %w", direction, err)
	}

	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
