package reader

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

// DefaultExcerptChars bounds excerpts derived from full content.
const DefaultExcerptChars = 600

// ExtractText returns the readable text of a document body. HTML is run
// through readability; anything else is only whitespace-cleaned.
func ExtractText(body, pageURL string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}
	if !looksLikeHTML(body) {
		return CleanText(body), nil
	}

	parsedURL := &url.URL{}
	if trimmed := strings.TrimSpace(pageURL); trimmed != "" {
		if u, err := url.Parse(trimmed); err == nil {
			parsedURL = u
		}
	}

	article, err := readability.FromReader(strings.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var renderedText bytes.Buffer
	if err := article.RenderText(&renderedText); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(renderedText.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	return text, nil
}

// Excerpt derives a short excerpt from a document body, preferring the
// page's meta description over the first readable paragraph.
func Excerpt(body, pageURL string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultExcerptChars
	}

	if looksLikeHTML(body) {
		if summary := MetaDescription(body); summary != "" {
			excerpt, _ := TruncateText(summary, maxChars)
			return excerpt, nil
		}
	}

	text, err := ExtractText(body, pageURL)
	if err != nil {
		return "", err
	}
	firstParagraph, _, _ := strings.Cut(text, "\n\n")
	excerpt, _ := TruncateText(firstParagraph, maxChars)
	return excerpt, nil
}

// MetaDescription returns the page summary from og:description or the
// description meta tag, or "" when the document has neither.
func MetaDescription(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	for _, selector := range []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		`meta[name="twitter:description"]`,
	} {
		if value, ok := doc.Find(selector).First().Attr("content"); ok {
			if clean := CleanText(value); clean != "" {
				return clean
			}
		}
	}
	return ""
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

// TruncateText clips text to maxChars runes and appends a single ellipsis rune when truncated.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if maxChars <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}

	clipped := strings.TrimSpace(string(runes[:maxChars-1]))
	if clipped == "" {
		return "…", true
	}

	return clipped + "…", true
}

func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"<html", "<body", "<p", "<div", "<article", "<br"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
