package text

import (
	"math"
	"strings"

	"khabar/internal/news"
)

// wordsPerToken converts a whitespace word count into an approximate
// model-token count.
const wordsPerToken = 0.75

// EstimateTokens approximates the token count of s from its word count.
func EstimateTokens(s string) int {
	return int(math.Round(float64(len(strings.Fields(s))) / wordsPerToken))
}

// Chunk splits text into passages of roughly chunkSize tokens. Each passage
// after the first starts with the trailing sentences of the previous one,
// as many as fit in overlap tokens. A sentence is never split, so a single
// sentence larger than chunkSize becomes its own passage.
func Chunk(text string, chunkSize, overlap int) []string {
	sentences := SplitSentences(text)

	var chunks []string
	var current []string
	currentCount := 0

	for _, sentence := range sentences {
		tokens := EstimateTokens(sentence)

		if currentCount+tokens > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, currentCount = overlapSuffix(current, overlap)
		}

		current = append(current, sentence)
		currentCount += tokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// overlapSuffix walks backward from the end of sentences and keeps the
// longest suffix whose estimate stays within overlap.
func overlapSuffix(sentences []string, overlap int) ([]string, int) {
	count := 0
	i := len(sentences)
	for i > 0 {
		st := EstimateTokens(sentences[i-1])
		if count+st > overlap {
			break
		}
		count += st
		i--
	}
	suffix := make([]string, len(sentences)-i)
	copy(suffix, sentences[i:])
	return suffix, count
}

// ChunkArticles expands articles into chunks with consecutive ids starting
// at startID. ChunkIndex restarts at zero for every article.
func ChunkArticles(articles []news.Article, startID uint64, chunkSize, overlap int) []news.Chunk {
	var chunks []news.Chunk
	id := startID

	for _, a := range articles {
		for i, passage := range Chunk(a.Text, chunkSize, overlap) {
			chunks = append(chunks, news.Chunk{
				ChunkID:    id,
				Text:       passage,
				Title:      a.Title,
				URL:        a.URL,
				Date:       a.Date,
				Source:     a.Source,
				ChunkIndex: uint32(i),
				TokenCount: uint32(EstimateTokens(passage)),
			})
			id++
		}
	}
	return chunks
}
