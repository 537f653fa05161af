package ask_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"khabar/features/ask"
	"khabar/internal/news"
	"khabar/internal/retrieval"
)

func chunk(title, date, url, text string) retrieval.RankedChunk {
	return retrieval.RankedChunk{Chunk: news.Chunk{Title: title, Date: date, URL: url, Text: text}}
}

func TestBuildContext(t *testing.T) {
	got := ask.BuildContext([]retrieval.RankedChunk{
		chunk("Budget passed", "2024-11-30", "https://example.com/a", "The budget passed."),
		chunk("Rain expected", "2024-11-29", "https://example.com/b", "Rain is expected."),
	})

	want := "[Source 1]\nTitle  : Budget passed\nDate   : 2024-11-30\nURL    : https://example.com/a\nContent: The budget passed.\n" +
		"\n---\n" +
		"[Source 2]\nTitle  : Rain expected\nDate   : 2024-11-29\nURL    : https://example.com/b\nContent: Rain is expected.\n"
	assert.Equal(t, want, got)
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "", ask.BuildContext(nil))
}

func TestPrompt_TruncatesContext(t *testing.T) {
	context := strings.Repeat("क", 50)
	prompt := ask.Prompt("What happened?", context, 10)

	assert.Contains(t, prompt, strings.Repeat("क", 10)+"\n\n")
	assert.NotContains(t, prompt, strings.Repeat("क", 11))
	assert.True(t, strings.HasSuffix(prompt, "using only the articles above:\nWhat happened?"))
	assert.True(t, strings.HasPrefix(prompt, "Based on these news articles:\n\n"))
}
