package domain

import "time"

// Gmail system label ids used to derive record flags.
const (
	LabelUnread = "UNREAD"
	LabelSent   = "SENT"
	LabelDraft  = "DRAFT"
	LabelInbox  = "INBOX"
)

// MissingRecipient is published when a message has no To header.
const MissingRecipient = "Missing"

// EmailRecord is the row published to the analytics "email" data source.
type EmailRecord struct {
	OwnerEmail      string `json:"ownerEmail"`
	ThreadID        string `json:"threadId"`
	GmailMessageID  string `json:"gmailMessageId"`
	From            string `json:"from"`
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Timestamp       int64  `json:"timestamp"` // epoch milliseconds
	UnsubscribeLink string `json:"unsubscribeLink,omitempty"`
	Read            bool   `json:"read"`
	Sent            bool   `json:"sent"`
	Draft           bool   `json:"draft"`
	Inbox           bool   `json:"inbox"`
	SizeEstimate    int64  `json:"sizeEstimate"`
}

// MessageRef is one entry of a listing page.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessagePage is a single page returned by a mail provider listing.
type MessagePage struct {
	Messages      []MessageRef
	NextPageToken string
}

// ListQuery scopes a listing call.
type ListQuery struct {
	// Before, when non-zero, restricts results to messages older than it (epoch ms).
	Before     int64
	PageToken  string
	MaxResults int64
}

// MessageHeaders holds the raw header values the record needs.
type MessageHeaders struct {
	From    string
	To      string
	Subject string
	Date    string
}

// ParsedMessage is a provider message reduced to headers, labels and bodies.
type ParsedMessage struct {
	ID           string
	ThreadID     string
	Headers      MessageHeaders
	LabelIDs     []string
	TextHTML     string
	TextPlain    string
	SizeEstimate int64
	InternalDate time.Time
}

// HasLabel reports whether the message carries the given label id.
func (m *ParsedMessage) HasLabel(label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// RoutingKeyBatchPublished tags batch events on the message bus.
const RoutingKeyBatchPublished = "email.batch.published"

// BatchPublishedEvent announces one batch that reached the analytics store.
type BatchPublishedEvent struct {
	BatchID     string    `json:"batchId"`
	OwnerEmail  string    `json:"ownerEmail"`
	Count       int       `json:"count"`
	OldestAt    int64     `json:"oldestTimestamp,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}
