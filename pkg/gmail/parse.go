package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"google.golang.org/api/gmail/v1"
)

// ParseMessage reduces a full-format Gmail message to the fields the
// analytics record needs. It returns nil for a message without a payload.
func ParseMessage(msg *gmail.Message) *statsdomain.ParsedMessage {
	if msg == nil || msg.Payload == nil {
		return nil
	}

	headers := msg.Payload.Headers
	html, plain := getEmailBodies(msg.Payload)

	return &statsdomain.ParsedMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers: statsdomain.MessageHeaders{
			From:    getHeader(headers, "From"),
			To:      getHeader(headers, "To"),
			Subject: getHeader(headers, "Subject"),
			Date:    getHeader(headers, "Date"),
		},
		LabelIDs:     msg.LabelIds,
		TextHTML:     html,
		TextPlain:    plain,
		SizeEstimate: msg.SizeEstimate,
		InternalDate: time.UnixMilli(msg.InternalDate),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBodies returns the first text/html and text/plain bodies found in
// the MIME tree.
func getEmailBodies(payload *gmail.MessagePart) (html, plain string) {
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" {
			switch strings.ToLower(part.MimeType) {
			case "text/html":
				if html == "" {
					html = decodeBase64URL(part.Body.Data)
				}
			case "text/plain":
				if plain == "" {
					plain = decodeBase64URL(part.Body.Data)
				}
			}
		}
		for _, sub := range part.Parts {
			walk(sub)
		}
	}
	walk(payload)
	return html, plain
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
