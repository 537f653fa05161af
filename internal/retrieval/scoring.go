package retrieval

import (
	"math"
	"sort"
	"time"

	"khabar/internal/news"
)

// NeutralFreshness is the freshness of a chunk whose date cannot be parsed.
const NeutralFreshness = 0.5

// AgeDays returns the number of whole calendar days between date and now,
// clamped at zero. ok is false when date cannot be parsed.
func AgeDays(date string, now time.Time) (days int, ok bool) {
	r := news.ParseDate(date)
	if !r.Parsed {
		return 0, false
	}
	d := r.Time.UTC()
	n := now.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	days = int(to.Sub(from).Hours() / 24)
	return max(days, 0), true
}

// TimeDecay is exp(-rate * age_days). It is 1 for today and
// NeutralFreshness for an unparsable date.
func TimeDecay(date string, now time.Time, rate float64) float64 {
	days, ok := AgeDays(date, now)
	if !ok {
		return NeutralFreshness
	}
	return math.Exp(-rate * float64(days))
}

// Blend combines similarity and freshness. The weights are independent.
func Blend(similarity, freshness, semWeight, freshWeight float64) float64 {
	return semWeight*similarity + freshWeight*freshness
}

// DedupeByURL keeps the highest Final chunk per URL and returns the
// survivors ordered by Final, best first.
func DedupeByURL(chunks []RankedChunk) []RankedChunk {
	best := make(map[string]int, len(chunks))
	out := make([]RankedChunk, 0, len(chunks))
	for _, c := range chunks {
		i, seen := best[c.URL]
		if !seen {
			best[c.URL] = len(out)
			out = append(out, c)
			continue
		}
		if c.Final > out[i].Final {
			out[i] = c
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Final > out[j].Final })
	return out
}
