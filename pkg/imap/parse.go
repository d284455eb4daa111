package imap

import (
	"fmt"
	"io"
	"strings"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// maxPartSize caps how much of a single text part is read into memory.
const maxPartSize = 4 << 20

// ParseMessage reads an RFC 5322 message into headers and text bodies. The
// thread id is the root of the References chain, falling back to
// In-Reply-To and then the message's own Message-Id.
func ParseMessage(r io.Reader) (*statsdomain.ParsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("unable to read message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	parsed := &statsdomain.ParsedMessage{
		ThreadID: threadID(h),
		Headers: statsdomain.MessageHeaders{
			From:    headerText(h, "From"),
			To:      headerText(h, "To"),
			Subject: headerText(h, "Subject"),
			Date:    h.Get("Date"),
		},
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("unable to read part: %w", err)
		}

		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()

		switch strings.ToLower(contentType) {
		case "text/html":
			if parsed.TextHTML == "" {
				parsed.TextHTML = readPart(p.Body)
			}
		case "text/plain", "":
			if parsed.TextPlain == "" {
				parsed.TextPlain = readPart(p.Body)
			}
		}
	}

	return parsed, nil
}

func headerText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return v
}

func threadID(h mail.Header) string {
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if parents, err := h.MsgIDList("In-Reply-To"); err == nil && len(parents) > 0 {
		return parents[0]
	}
	if id, err := h.MessageID(); err == nil {
		return id
	}
	return ""
}

func readPart(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxPartSize))
	if err != nil {
		return ""
	}
	return string(b)
}
