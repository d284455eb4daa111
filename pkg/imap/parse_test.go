package imap

import (
	"strings"
	"testing"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: =?UTF-8?Q?Caf=C3=A9?= <news@cafe.example>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Weekly menu\r\n" +
	"Date: Tue, 14 Nov 2023 22:13:20 +0000\r\n" +
	"Message-Id: <self@cafe.example>\r\n" +
	"References: <root@cafe.example> <parent@cafe.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain menu\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<a href=\"https://cafe.example/bye\">Unsubscribe</a>\r\n" +
	"--XYZ--\r\n"

func TestParseMessage_Multipart(t *testing.T) {
	parsed, err := ParseMessage(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "Café <news@cafe.example>", parsed.Headers.From)
	assert.Equal(t, "me@example.com", parsed.Headers.To)
	assert.Equal(t, "Weekly menu", parsed.Headers.Subject)
	assert.Equal(t, "Tue, 14 Nov 2023 22:13:20 +0000", parsed.Headers.Date)
	assert.Equal(t, "root@cafe.example", parsed.ThreadID)
	assert.Contains(t, parsed.TextPlain, "Plain menu")
	assert.Contains(t, parsed.TextHTML, `href="https://cafe.example/bye"`)
}

func TestParseMessage_SinglePartFallsBackToMessageID(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Subject: hi\r\n" +
		"Message-Id: <only@example.com>\r\n" +
		"\r\n" +
		"just text\r\n"

	parsed, err := ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "only@example.com", parsed.ThreadID)
	assert.Empty(t, parsed.Headers.To)
	assert.Contains(t, parsed.TextPlain, "just text")
	assert.Empty(t, parsed.TextHTML)
}

func TestSelectPage(t *testing.T) {
	page, next := selectPage([]uint32{3, 9, 1, 7, 5}, 2)
	assert.Equal(t, []uint32{9, 7}, page)
	assert.Equal(t, "uid:7", next)

	page, next = selectPage([]uint32{3, 1}, 2)
	assert.Equal(t, []uint32{3, 1}, page)
	assert.Empty(t, next)

	page, next = selectPage(nil, 200)
	assert.Empty(t, page)
	assert.Empty(t, next)
}

func TestParseCursor(t *testing.T) {
	n, err := parseCursor("")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	n, err = parseCursor("uid:42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)

	_, err = parseCursor("page-2")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	_, err = parseCursor("uid:abc")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestBeforeDate(t *testing.T) {
	bound := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()
	assert.Equal(t, time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC), beforeDate(bound))
}

func TestLabelsFromFlags(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{statsdomain.LabelInbox, statsdomain.LabelUnread},
		labelsFromFlags(nil, "INBOX"))
	assert.ElementsMatch(t,
		[]string{statsdomain.LabelInbox},
		labelsFromFlags([]string{imap.SeenFlag, imap.FlaggedFlag}, "INBOX"))
	assert.ElementsMatch(t,
		[]string{statsdomain.LabelInbox, statsdomain.LabelDraft},
		labelsFromFlags([]string{imap.SeenFlag, imap.DraftFlag}, "INBOX"))
}
