package ask

import (
	"fmt"
	"strings"

	"khabar/internal/retrieval"
)

const sourceSeparator = "\n---\n"

// BuildContext formats ranked chunks as numbered source sections the
// generator can cite.
func BuildContext(chunks []retrieval.RankedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Source %d]\nTitle  : %s\nDate   : %s\nURL    : %s\nContent: %s\n",
			i+1, c.Title, c.Date, c.URL, c.Text)
	}
	return strings.Join(parts, sourceSeparator)
}

// Prompt embeds at most limit runes of context ahead of the question.
func Prompt(question, context string, limit int) string {
	return "Based on these news articles:\n\n" +
		truncateRunes(context, limit) +
		"\n\nAnswer in 2-3 sentences using only the articles above:\n" +
		question
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
