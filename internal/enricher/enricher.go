package enricher

import (
	"context"
	"fmt"
	"log/slog"

	"sentinel/internal/analyzer"
	"sentinel/internal/metrics"
	"sentinel/internal/model"
)

const DefaultBatchSize = 10

type Analyzer interface {
	Analyze(ctx context.Context, title, content string) (model.AnalysisResult, error)
}

type TriggerEngine interface {
	Evaluate(article model.Article, triggers []model.AlertTrigger) []model.AlertRecord
}

type ArticleStore interface {
	SelectUnprocessed(limit int) []model.Article
	Apply(update model.Article) error
}

// BatchResult describes one enrichment run. Alerts are in enrichment order.
type BatchResult struct {
	Attempted int
	Succeeded int
	Fallbacks int
	Alerts    []model.AlertRecord
}

func (r BatchResult) Empty() bool {
	return r.Attempted == 0
}

type Enricher struct {
	analyzer     Analyzer
	engine       TriggerEngine
	batchSize    int
	contentLimit int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func New(
	a Analyzer,
	engine TriggerEngine,
	batchSize int,
	contentLimit int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Enricher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if contentLimit <= 0 {
		contentLimit = analyzer.DefaultContentLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Enricher{
		analyzer:     a,
		engine:       engine,
		batchSize:    batchSize,
		contentLimit: contentLimit,
		logger:       logger,
		metrics:      m,
	}
}

func (e *Enricher) BatchSize() int {
	return e.batchSize
}

// RunBatch enriches up to one batch of unprocessed articles, one at a time,
// and evaluates triggers right after each article is stored. Analyzer
// failures are replaced by the fallback analysis. On cancellation the
// articles not reached stay unprocessed and the partial result is returned.
func (e *Enricher) RunBatch(ctx context.Context, store ArticleStore, triggers []model.AlertTrigger) (BatchResult, error) {
	var result BatchResult

	batch := store.SelectUnprocessed(e.batchSize)
	if len(batch) == 0 {
		return result, nil
	}

	for _, article := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempted++

		analysis, fallback := e.analyze(ctx, article)
		enriched := article.Enriched(analysis)

		if err := store.Apply(enriched); err != nil {
			return result, fmt.Errorf("enrich %s: %w", article.ID, err)
		}

		if fallback {
			result.Fallbacks++
		} else {
			result.Succeeded++
		}
		e.metrics.Enriched(fallback)

		alerts := e.engine.Evaluate(enriched, triggers)
		for _, alert := range alerts {
			e.metrics.AlertFired(string(alert.Channel))
			e.logger.Info("alert fired", "article", article.Title, "channel", alert.Channel)
		}
		result.Alerts = append(result.Alerts, alerts...)
	}

	e.logger.Info("batch enriched",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"fallbacks", result.Fallbacks,
		"alerts", len(result.Alerts),
	)

	return result, nil
}

func (e *Enricher) analyze(ctx context.Context, article model.Article) (model.AnalysisResult, bool) {
	if e.analyzer == nil {
		return analyzer.Fallback(), true
	}

	content := analyzer.Truncate(article.Content, e.contentLimit)

	analysis, err := e.analyzer.Analyze(ctx, article.Title, content)
	if err != nil {
		e.logger.Warn("analysis failed, using fallback", "article", article.ID, "error", err)
		return analyzer.Fallback(), true
	}

	return analysis, false
}
