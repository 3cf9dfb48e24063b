package sentinel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"sentinel/internal/model"
)

const (
	digestSize = 15

	noAnswer = "I'm sorry, I couldn't generate a response."
)

var (
	ErrNoAnalyst     = errors.New("analyst chat is not configured")
	ErrEmptyQuestion = errors.New("question is empty")
)

type Analyst interface {
	Chat(ctx context.Context, digest, question string) (string, error)
}

// Ask answers a question about the most recent analyzed articles.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if s.analyst == nil {
		return "", ErrNoAnalyst
	}

	articles, err := s.Articles(ctx)
	if err != nil {
		return "", err
	}

	answer, err := s.analyst.Chat(ctx, Digest(articles), question)
	if err != nil {
		return "", fmt.Errorf("ask analyst: %w", err)
	}
	if answer == "" {
		return noAnswer, nil
	}

	return answer, nil
}

// Digest lists up to 15 processed articles, newest first, one per line as
// "[source] title: summary".
func Digest(articles []model.Article) string {
	processed := lo.Filter(articles, func(a model.Article, _ int) bool {
		return a.Processed && a.Analysis != nil
	})

	lines := lo.Map(lo.Slice(processed, 0, digestSize), func(a model.Article, _ int) string {
		return fmt.Sprintf("[%s] %s: %s", a.Source, a.Title, a.Analysis.Summary)
	})

	return strings.Join(lines, "\n")
}
