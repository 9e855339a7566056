package session

import (
	"regexp"
	"strconv"
	"strings"

	"sandy-backend/internal/models"
)

// titleMaxLen is how many characters of the first user message become the
// chat title before an ellipsis is appended.
const titleMaxLen = 30

var placeholderPattern = regexp.MustCompile(`^New Chat (\d+)$`)

// placeholderTitle numbers a fresh chat: it scans the existing titles for
// "New Chat N", takes the maximum N and returns "New Chat N+1" (starting at 1
// when none match). Deterministic for a given title set.
func placeholderTitle(existingTitles []string) string {
	max := 0
	for _, title := range existingTitles {
		m := placeholderPattern.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return "New Chat " + strconv.Itoa(max+1)
}

func isPlaceholderTitle(title string) bool {
	return placeholderPattern.MatchString(title)
}

// titleFromMessages derives a title from the first user-authored message:
// its text (first text part when the content is composite) truncated to
// titleMaxLen characters, with an ellipsis when truncated. Falls back to
// "New Chat" when no usable text exists.
func titleFromMessages(messages []models.Message) string {
	var first *models.Message
	for i := range messages {
		if messages[i].Role == models.RoleUser {
			first = &messages[i]
			break
		}
	}
	if first == nil {
		return "New Chat"
	}

	content := first.Content.FirstText()
	if content == "" {
		return "New Chat"
	}

	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return strings.TrimSpace(string(runes[:titleMaxLen])) + "..."
}
