package unsubscribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindLink(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "empty document",
			html: "",
			want: "",
		},
		{
			name: "no anchors",
			html: "<p>Thanks for reading. To unsubscribe reply STOP.</p>",
			want: "",
		},
		{
			name: "no matching anchor",
			html: `<a href="https://example.com/home">Home</a><a href="https://example.com/prefs">Preferences</a>`,
			want: "",
		},
		{
			name: "case insensitive match",
			html: `<p><a href="https://example.com/u?id=1">UnSubscribe here</a></p>`,
			want: "https://example.com/u?id=1",
		},
		{
			name: "first match in document order wins",
			html: `<a href="https://a.example/view">View online</a>
<a href="https://a.example/unsub-1">Unsubscribe</a>
<a href="https://a.example/unsub-2">unsubscribe from all</a>`,
			want: "https://a.example/unsub-1",
		},
		{
			name: "text in nested element",
			html: `<a href="https://b.example/out"><span>Click to</span> <b>UNSUBSCRIBE</b></a>`,
			want: "https://b.example/out",
		},
		{
			name: "href alone does not match",
			html: `<a href="https://c.example/unsubscribe">Manage emails</a>`,
			want: "",
		},
		{
			name: "matching anchor without href stops search",
			html: `<a name="x">Unsubscribe</a><a href="https://d.example/unsubscribe">unsubscribe</a>`,
			want: "",
		},
		{
			name: "malformed html tolerated",
			html: `<div><a href="https://e.example/bye">unsubscribe<div></p>`,
			want: "https://e.example/bye",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindLink(tt.html))
		})
	}
}
