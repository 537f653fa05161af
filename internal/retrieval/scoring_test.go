package retrieval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"khabar/internal/news"
	"khabar/internal/retrieval"
)

var fixedNow = time.Date(2024, 12, 1, 15, 30, 0, 0, time.UTC)

func TestTimeDecay(t *testing.T) {
	t.Run("TodayIsOne", func(t *testing.T) {
		assert.Equal(t, 1.0, retrieval.TimeDecay(fixedNow.Format(news.DateLayout), fixedNow, 0.02))
	})

	t.Run("MalformedIsNeutral", func(t *testing.T) {
		assert.Equal(t, 0.5, retrieval.TimeDecay("not a date", fixedNow, 0.02))
		assert.Equal(t, 0.5, retrieval.TimeDecay("", fixedNow, 0.02))
	})

	t.Run("StrictlyDecreasing", func(t *testing.T) {
		prev := 2.0
		for days := 0; days <= 3650; days += 30 {
			date := fixedNow.AddDate(0, 0, -days).Format(news.DateLayout)
			got := retrieval.TimeDecay(date, fixedNow, 0.02)
			assert.Less(t, got, prev, "age %d days", days)
			prev = got
		}
	})

	t.Run("FutureDateClampsToOne", func(t *testing.T) {
		date := fixedNow.AddDate(0, 0, 3).Format(news.DateLayout)
		assert.Equal(t, 1.0, retrieval.TimeDecay(date, fixedNow, 0.02))
	})
}

func TestAgeDays(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		want   int
		wantOK bool
	}{
		{"SameDay", "2024-12-01", 0, true},
		{"Yesterday", "2024-11-30", 1, true},
		{"RFC3339", "2024-11-01T23:59:00Z", 30, true},
		{"Future", "2025-01-01", 0, true},
		{"Garbage", "yesterday-ish", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := retrieval.AgeDays(tt.date, fixedNow)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 0.7*0.8+0.3*0.5, retrieval.Blend(0.8, 0.5, 0.7, 0.3), 1e-12)
	// Weights are independent.
	assert.InDelta(t, 2.0*0.8, retrieval.Blend(0.8, 0.5, 2.0, 0), 1e-12)
}

func TestDedupeByURL(t *testing.T) {
	chunk := func(id uint64, url string, final float64) retrieval.RankedChunk {
		return retrieval.RankedChunk{Chunk: news.Chunk{ChunkID: id, URL: url}, Final: final}
	}

	out := retrieval.DedupeByURL([]retrieval.RankedChunk{
		chunk(1, "https://a", 0.4),
		chunk(2, "https://b", 0.6),
		chunk(3, "https://a", 0.9),
		chunk(4, "https://c", 0.1),
	})

	assert.Len(t, out, 3)
	assert.Equal(t, uint64(3), out[0].ChunkID)
	assert.Equal(t, uint64(2), out[1].ChunkID)
	assert.Equal(t, uint64(4), out[2].ChunkID)
}
