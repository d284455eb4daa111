// Package unsubscribe finds unsubscribe links in HTML mail bodies.
package unsubscribe

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FindLink returns the href of the first anchor whose text contains
// "unsubscribe", ignoring case. It returns "" when html is empty, no anchor
// matches, or the matching anchor has no href.
func FindLink(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var link string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(s.Text()), "unsubscribe") {
			return true
		}
		link, _ = s.Attr("href")
		return false
	})

	return link
}
