package fetch

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PDFLinks returns the targets of <a href> elements in an HTML page whose path
// ends in ".pdf", resolved against base, in document order without duplicates.
func PDFLinks(r io.Reader, base *url.URL) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	// A <base href> overrides the page URL for relative links.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]bool)
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if !isPDF(u.Path) {
			return
		}
		u.Fragment = ""
		key := u.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, u)
	})
	return links, nil
}
