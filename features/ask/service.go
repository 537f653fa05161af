package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"khabar/internal/retrieval"
)

var ErrEmptyQuestion = errors.New("question is required")

// NoAnswerText is returned in Answer.Text when nothing relevant was found.
const NoAnswerText = "No relevant articles found."

type Searcher interface {
	Search(ctx context.Context, query string, o *retrieval.Overrides) (*retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Answer struct {
	Question string                  `json:"question"`
	Text     string                  `json:"answer"`
	NoAnswer bool                    `json:"no_answer"`
	Hints    []string                `json:"hints,omitempty"`
	Sources  []retrieval.RankedChunk `json:"sources"`
}

type Service struct {
	searcher     Searcher
	generator    Generator
	contextChars int
}

func NewService(s Searcher, g Generator, contextChars int) *Service {
	return &Service{searcher: s, generator: g, contextChars: contextChars}
}

func (s *Service) Search(ctx context.Context, query string, o *retrieval.Overrides) (*retrieval.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}
	return s.searcher.Search(ctx, query, o)
}

// Ask retrieves sources for question and generates a short grounded
// answer. An empty retrieval is not an error: the answer is marked
// NoAnswer and carries the retrieval hints.
func (s *Service) Ask(ctx context.Context, question string, o *retrieval.Overrides) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	res, err := s.searcher.Search(ctx, question, o)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(res.Chunks) == 0 {
		slog.InfoContext(ctx, "no relevant articles", "question", question)
		return &Answer{
			Question: question,
			Text:     NoAnswerText,
			NoAnswer: true,
			Hints:    res.Hints,
			Sources:  []retrieval.RankedChunk{},
		}, nil
	}

	prompt := Prompt(question, BuildContext(res.Chunks), s.contextChars)
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	slog.InfoContext(ctx, "answer generated", "sources", len(res.Chunks), "answer_len", len(text))

	return &Answer{
		Question: question,
		Text:     strings.TrimSpace(text),
		Sources:  res.Chunks,
	}, nil
}
