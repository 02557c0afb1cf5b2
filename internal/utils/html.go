package utils

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText extracts readable text from an HTML body. Script and style
// contents are dropped. Falls back to the raw input when parsing fails.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script,style,head").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
	})
	text := sb.String()
	if text == "" {
		text = doc.Text()
	}

	// collapse runs of blank lines left behind by block elements
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// TextToHTML renders a plain-text body as simple paragraph HTML.
// The plain-text part stays authoritative; this is only the alternative part.
func TextToHTML(text string) string {
	if text == "" {
		return ""
	}
	escaper := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	paragraphs := strings.Split(text, "\n\n")
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = escaper.Replace(p)
		p = strings.ReplaceAll(p, "\n", "<br/>")
		sb.WriteString(fmt.Sprintf("<p>%s</p>", p))
	}
	sb.WriteString("</body></html>")
	return sb.String()
}
