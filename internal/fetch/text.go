package fetch

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// HTMLToText keeps what matters for describing a product: title, meta and OpenGraph
// descriptions, headings, and paragraph and list text.
func HTMLToText(data []byte, contentType string) (string, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return "", err
		}
		utf8data = data
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
	if err != nil {
		return "", err
	}
	doc.Find("script,noscript,style,svg,nav,footer").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	add := func(text string) {
		text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
		if text != "" {
			parts = append(parts, text)
		}
	}
	add(doc.Find("title").First().Text())
	desc := doc.Find(`meta[name="description"]`).AttrOr("content", "")
	if strings.TrimSpace(desc) == "" {
		desc = doc.Find(`meta[property="og:description"]`).AttrOr("content", "")
	}
	add(desc)
	doc.Find("h1,h2,h3").Each(func(i int, s *goquery.Selection) {
		add(s.Text())
	})
	doc.Find("p,li,td").Each(func(i int, s *goquery.Selection) {
		add(s.Text())
	})
	if len(parts) <= 2 {
		add(doc.Find("body").Text())
	}
	return strings.Join(dedupe(parts), "\n"), nil
}

func dedupe(parts []string) []string {
	seen := make(map[string]bool, len(parts))
	out := parts[:0]
	for _, part := range parts {
		if seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
