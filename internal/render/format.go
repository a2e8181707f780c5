package render

import (
	"strings"

	"oden/internal/domain"
)

// SenderDisplay renders "Name ([[+number]])", falling back to whichever part exists.
func SenderDisplay(name, number string) string {
	link := ""
	if number != "" {
		link = "[[" + number + "]]"
	}
	switch {
	case name != "" && link != "":
		return name + " (" + link + ")"
	case name != "":
		return name
	case link != "":
		return link
	}
	return "Unknown"
}

// FormatQuote renders a quoted message as a markdown blockquote.
func FormatQuote(q *domain.Quote) string {
	if q == nil {
		return ""
	}
	author := "Unknown"
	if q.AuthorName != "" || q.AuthorNumber != "" {
		author = SenderDisplay(q.AuthorName, q.AuthorNumber)
	} else if q.Author != "" {
		author = q.Author
	}
	text := q.Text
	if text == "" {
		text = "..."
	}

	lines := []string{"> **Replying to " + author + ":**"}
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, "> "+line)
	}
	return strings.Join(lines, "\n")
}
