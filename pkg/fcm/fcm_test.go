package fcm

import (
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
)

func TestBuildMulticastLink(t *testing.T) {
	msg := buildMulticast([]string{"a"}, NotificationData{
		Title: "Done",
		Body:  "3 pages",
		Data:  map[string]string{"click_action": "/stats"},
	})
	assert.Equal(t, []string{"a"}, msg.Tokens)
	assert.Equal(t, "Done", msg.Notification.Title)
	assert.Equal(t, "/stats", msg.Webpush.FCMOptions.Link)

	msg = buildMulticast([]string{"a"}, NotificationData{Title: "Done"})
	assert.Nil(t, msg.Webpush.FCMOptions)
}

func TestStaleTokensKeepsTransientFailures(t *testing.T) {
	stale := staleTokens([]string{"ok", "flaky"}, []*messaging.SendResponse{
		{Success: true, MessageID: "m1"},
		{Success: false, Error: errors.New("unavailable")},
	})
	assert.Empty(t, stale)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 20))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
