package session

import (
	"strings"
	"unicode"
)

// DefaultLabel names a batch started without a label.
const DefaultLabel = "未命名"

var (
	startWords = []string{"開始", "start"}
	endWords   = []string{"結束", "end"}
)

// Command is a parsed control message.
type Command struct {
	Input Input
	Label string
}

// ParseCommand classifies text by a case-insensitive prefix match on the
// command words. For start, the label is everything after the first run of
// whitespace.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	switch {
	case hasAnyPrefix(lower, startWords):
		return Command{Input: InputStart, Label: labelOf(trimmed)}
	case hasAnyPrefix(lower, endWords):
		return Command{Input: InputEnd}
	}
	return Command{Input: InputContent}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func labelOf(text string) string {
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return DefaultLabel
	}
	label := strings.TrimSpace(text[idx:])
	if label == "" {
		return DefaultLabel
	}
	return label
}
