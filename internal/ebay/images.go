package ebay

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const imageHost = "https://i.ebayimg.com"

var thumbSize = regexp.MustCompile(`s-l(64|96|140|225|300)\.jpg`)

// NormalizeImageURL turns a scraped image reference into an absolute https
// URL of the 500px rendition. Placeholders and spacers normalize to "".
func NormalizeImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || strings.HasPrefix(u, "data:") {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.Contains(lower, "placeholder") || strings.Contains(lower, "no-image") || strings.HasSuffix(lower, ".gif") {
		return ""
	}

	switch {
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case strings.HasPrefix(u, "/"):
		u = imageHost + u
	case strings.HasPrefix(u, "http://"):
		u = "https://" + strings.TrimPrefix(u, "http://")
	}

	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return thumbSize.ReplaceAllString(u, "s-l500.jpg")
}

// imageCandidate picks the best image reference from a result card:
// src, data-src, data-imageurl, the largest srcset entry, then any img.
func imageCandidate(node *goquery.Selection) string {
	img := node.Find(".s-item__image-img, .s-card__image img, .s-item__image img").First()

	var candidates []string
	if img.Length() > 0 {
		for _, attr := range []string{"src", "data-src", "data-imageurl"} {
			if v, ok := img.Attr(attr); ok {
				candidates = append(candidates, v)
			}
		}
		if srcset, ok := img.Attr("srcset"); ok {
			candidates = append(candidates, largestSrcset(srcset))
		}
	}
	node.Find("img").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("src"); ok {
			candidates = append(candidates, v)
		}
	})

	for _, c := range candidates {
		if u := NormalizeImageURL(c); u != "" {
			return u
		}
	}
	return ""
}

// largestSrcset returns the last entry of a srcset; eBay lists them in
// ascending size.
func largestSrcset(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		fields := strings.Fields(parts[i])
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
