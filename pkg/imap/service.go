// Package imap reads a mailbox over IMAP and exposes it as a paginated
// message source.
package imap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMailbox = "INBOX"
	cursorPrefix   = "uid:"
	commandTimeout = 30 * time.Second
)

var ErrInvalidCursor = errors.New("invalid imap page cursor")

// Credentials identify one IMAP account.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (c Credentials) addr() string {
	port := c.Port
	if port == 0 {
		port = 993
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ValidateCredentials logs in and out again.
func (s *Service) ValidateCredentials(ctx context.Context, creds Credentials) error {
	c, err := s.login(ctx, creds)
	if err != nil {
		return err
	}
	return c.Logout()
}

// NewClient logs in and selects INBOX read-only.
func (s *Service) NewClient(ctx context.Context, creds Credentials) (*Client, error) {
	c, err := s.login(ctx, creds)
	if err != nil {
		return nil, err
	}

	if _, err := c.Select(defaultMailbox, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("unable to select %s: %w", defaultMailbox, err)
	}

	return &Client{conn: c, mailbox: defaultMailbox}, nil
}

func (s *Service) login(ctx context.Context, creds Credentials) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := client.DialTLS(creds.addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", creds.addr(), err)
	}
	c.Timeout = commandTimeout

	if err := c.Login(creds.Username, creds.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	log.WithField("host", creds.Host).Debug("[IMAP] Logged in")
	return c, nil
}

// Client pages through one mailbox, newest UID first. The underlying
// connection runs one command at a time.
type Client struct {
	mu      sync.Mutex
	conn    *client.Client
	mailbox string
}

// ListMessages returns up to query.MaxResults message refs older than the
// cursor. The cursor has the form "uid:<n>" and means "UIDs below n".
func (c *Client) ListMessages(ctx context.Context, query statsdomain.ListQuery) (*statsdomain.MessagePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upper, err := parseCursor(query.PageToken)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if query.Before > 0 {
		criteria.Before = beforeDate(query.Before)
	}
	if upper > 0 {
		if upper <= 1 {
			return &statsdomain.MessagePage{}, nil
		}
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(1, upper-1)
	}

	var uids []uint32
	c.mu.Lock()
	err = runWithContext(ctx, func() error {
		var err error
		uids, err = c.conn.UidSearch(criteria)
		return err
	}, c.conn.Terminate)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", c.mailbox, err)
	}

	selected, next := selectPage(uids, query.MaxResults)

	page := &statsdomain.MessagePage{
		Messages:      make([]statsdomain.MessageRef, 0, len(selected)),
		NextPageToken: next,
	}
	for _, uid := range selected {
		id := strconv.FormatUint(uint64(uid), 10)
		// Threads are resolved from headers once the message is fetched.
		page.Messages = append(page.Messages, statsdomain.MessageRef{ID: id, ThreadID: id})
	}
	return page, nil
}

// GetMessage fetches the full RFC 5322 message for a UID. It returns nil, nil
// when the UID no longer exists.
func (c *Client) GetMessage(ctx context.Context, id string) (*statsdomain.ParsedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q: %w", id, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		section.FetchItem(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var fetched *imap.Message
	err = runWithContext(ctx, func() error {
		messages := make(chan *imap.Message, 1)
		done := make(chan error, 1)
		go func() {
			done <- c.conn.UidFetch(seqset, items, messages)
		}()
		for m := range messages {
			fetched = m
		}
		return <-done
	}, c.conn.Terminate)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch uid %s: %w", id, err)
	}
	if fetched == nil {
		return nil, nil
	}

	body := fetched.GetBody(section)
	if body == nil {
		return nil, nil
	}

	parsed, err := ParseMessage(body)
	if err != nil {
		log.WithError(err).WithField("uid", id).Warn("[IMAP] Skipping unparsable message")
		return nil, nil
	}

	parsed.ID = id
	if parsed.ThreadID == "" {
		parsed.ThreadID = id
	}
	parsed.LabelIDs = labelsFromFlags(fetched.Flags, c.mailbox)
	parsed.SizeEstimate = int64(fetched.Size)
	parsed.InternalDate = fetched.InternalDate
	return parsed, nil
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Logout()
}

// runWithContext runs cmd and returns its error. When ctx ends first, abort
// is called to unblock cmd and ctx.Err() is returned once cmd has exited.
// The connection cannot be reused after an abort.
func runWithContext(ctx context.Context, cmd func() error, abort func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := abort(); err != nil {
			log.WithError(err).Debug("[IMAP] Failed to drop connection")
		}
		<-done
		return ctx.Err()
	}
}

func parseCursor(token string) (uint32, error) {
	if token == "" {
		return 0, nil
	}
	if !strings.HasPrefix(token, cursorPrefix) {
		return 0, ErrInvalidCursor
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(token, cursorPrefix), 10, 32)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	return uint32(n), nil
}

// selectPage picks the max highest UIDs and the cursor for the rest.
func selectPage(uids []uint32, max int64) ([]uint32, string) {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	if max <= 0 || int64(len(sorted)) <= max {
		return sorted, ""
	}
	page := sorted[:max]
	return page, cursorPrefix + strconv.FormatUint(uint64(page[len(page)-1]), 10)
}

// beforeDate converts an epoch-ms bound to an IMAP BEFORE date. BEFORE has
// day granularity, so the bound's whole day is kept.
func beforeDate(beforeMs int64) time.Time {
	t := time.UnixMilli(beforeMs).UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, 1)
}

func labelsFromFlags(flags []string, mailbox string) []string {
	labels := []string{}
	if strings.EqualFold(mailbox, defaultMailbox) {
		labels = append(labels, statsdomain.LabelInbox)
	}

	seen := false
	for _, f := range flags {
		switch f {
		case imap.SeenFlag:
			seen = true
		case imap.DraftFlag:
			labels = append(labels, statsdomain.LabelDraft)
		}
	}
	if !seen {
		labels = append(labels, statsdomain.LabelUnread)
	}
	return labels
}
