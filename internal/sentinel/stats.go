package sentinel

import (
	"context"
	"math"
	"strings"

	"github.com/samber/lo"

	"sentinel/internal/model"
)

const (
	positiveSentiment = 0.3
	negativeSentiment = -0.3
	highIntensity     = 0.8
)

// Stats aggregates the stored articles for a dashboard. Sentiment figures
// cover processed articles only.
type Stats struct {
	Total            int
	Processed        int
	Pending          int
	AverageSentiment float64
	Positive         int
	Neutral          int
	Negative         int
	HighIntensity    int
	Categories       map[model.Category]int
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	articles, err := s.Articles(ctx)
	if err != nil {
		return Stats{}, err
	}

	return ComputeStats(articles), nil
}

func ComputeStats(articles []model.Article) Stats {
	stats := Stats{
		Total:      len(articles),
		Categories: make(map[model.Category]int),
	}

	processed := lo.Filter(articles, func(a model.Article, _ int) bool {
		return a.Processed && a.Analysis != nil
	})
	stats.Processed = len(processed)
	stats.Pending = stats.Total - stats.Processed

	var sum float64
	for _, a := range processed {
		score := a.Analysis.Sentiment
		sum += score

		stats.Categories[a.Analysis.Category]++

		switch {
		case score > positiveSentiment:
			stats.Positive++
		case score < negativeSentiment:
			stats.Negative++
		default:
			stats.Neutral++
		}

		if math.Abs(score) > highIntensity {
			stats.HighIntensity++
		}
	}

	if stats.Processed > 0 {
		stats.AverageSentiment = sum / float64(stats.Processed)
	}

	return stats
}

// Query filters articles. An empty Category matches every article, a set
// one only processed articles of that category. Term matches title or source
// case-insensitively.
type Query struct {
	Category model.Category
	Term     string
}

func (s *Service) Search(ctx context.Context, q Query) ([]model.Article, error) {
	articles, err := s.Articles(ctx)
	if err != nil {
		return nil, err
	}

	return Filter(articles, q), nil
}

func Filter(articles []model.Article, q Query) []model.Article {
	term := strings.ToLower(strings.TrimSpace(q.Term))

	return lo.Filter(articles, func(a model.Article, _ int) bool {
		if q.Category != "" && (a.Analysis == nil || a.Analysis.Category != q.Category) {
			return false
		}

		return strings.Contains(strings.ToLower(a.Title), term) ||
			strings.Contains(strings.ToLower(a.Source), term)
	})
}
