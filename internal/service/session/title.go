package session

import "strings"

// MaxTitleRunes bounds derived titles.
const MaxTitleRunes = 30

const ellipsis = "..."

// DeriveTitle takes text up to its first line break, truncated to
// MaxTitleRunes, and marks any cut with an ellipsis.
func DeriveTitle(text string) string {
	title := text
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSuffix(title[:i], "\r")
	}

	runes := []rune(title)
	if len(runes) > MaxTitleRunes {
		title = string(runes[:MaxTitleRunes])
	}

	if len(title) < len(text) {
		return title + ellipsis
	}
	return title
}
