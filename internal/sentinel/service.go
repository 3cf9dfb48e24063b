// Package sentinel runs the pipeline operations against persisted state.
// Every operation loads what it needs at the start and saves at the end, so
// a Service holds no article data between calls.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"sentinel/internal/enricher"
	"sentinel/internal/fetcher"
	"sentinel/internal/metrics"
	"sentinel/internal/model"
	"sentinel/internal/storage"
)

const (
	DefaultHistoryLimit = 1000

	StatusBusy       = "Another run is in progress."
	StatusNoFeeds    = "No active feeds to poll."
	StatusAllDone    = "All items analyzed."
	StatusProcessing = "Intelligence processing successful."
)

type Poller interface {
	Poll(ctx context.Context, store fetcher.ArticleStore, feeds []model.Feed) (fetcher.PollResult, error)
}

type Batcher interface {
	RunBatch(ctx context.Context, store enricher.ArticleStore, triggers []model.AlertTrigger) (enricher.BatchResult, error)
	BatchSize() int
}

type RefreshReport struct {
	Skipped bool
	Poll    fetcher.PollResult
	Status  string
}

type AnalyzeReport struct {
	Skipped bool
	Batch   enricher.BatchResult
	Status  string
}

type Config struct {
	MaxArticles  int
	HistoryLimit int
}

type Service struct {
	state    storage.StateStore
	poller   Poller
	batcher  Batcher
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
	now      func() time.Time
	analyst  Analyst
	busy     atomic.Bool
	configMu sync.Mutex
}

type Option func(*Service)

// WithAnalyst enables Ask.
func WithAnalyst(a Analyst) Option {
	return func(s *Service) { s.analyst = a }
}

func New(
	state storage.StateStore,
	poller Poller,
	batcher Batcher,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = storage.DefaultMaxArticles
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		state:   state,
		poller:  poller,
		batcher: batcher,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Busy reports whether a refresh or analyze run is in progress.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// Refresh polls every active feed and merges the new items into the stored
// articles. It returns a skipped report when another run holds the service.
func (s *Service) Refresh(ctx context.Context) (RefreshReport, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.Skipped("refresh")
		return RefreshReport{Skipped: true, Status: StatusBusy}, nil
	}
	defer s.busy.Store(false)

	feeds, err := s.Feeds(ctx)
	if err != nil {
		return RefreshReport{}, err
	}

	store, err := s.loadArticles(ctx)
	if err != nil {
		return RefreshReport{}, err
	}

	s.logger.Info("polling intelligence sources", "feeds", len(feeds))

	result, err := s.poller.Poll(ctx, store, feeds)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("poll: %w", err)
	}

	if err := s.state.Save(ctx, storage.KeyArticles, store.All()); err != nil {
		return RefreshReport{}, fmt.Errorf("save articles: %w", err)
	}

	if err := s.stampFeeds(ctx, result.Feeds); err != nil {
		return RefreshReport{}, err
	}

	status := result.Status()
	if len(result.Feeds) == 0 {
		status = StatusNoFeeds
	}

	return RefreshReport{Poll: result, Status: status}, nil
}

// Analyze enriches one batch of unprocessed articles and records the fired
// alerts. Work finished before a cancellation is still saved.
func (s *Service) Analyze(ctx context.Context) (AnalyzeReport, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.Skipped("analyze")
		return AnalyzeReport{Skipped: true, Status: StatusBusy}, nil
	}
	defer s.busy.Store(false)

	store, err := s.loadArticles(ctx)
	if err != nil {
		return AnalyzeReport{}, err
	}

	triggers, err := s.Triggers(ctx)
	if err != nil {
		return AnalyzeReport{}, err
	}

	if pending := len(store.SelectUnprocessed(s.batcher.BatchSize())); pending > 0 {
		s.logger.Info("analyzing batch", "size", pending)
	}

	result, runErr := s.batcher.RunBatch(ctx, store, triggers)
	if result.Empty() && runErr == nil {
		return AnalyzeReport{Batch: result, Status: StatusAllDone}, nil
	}

	saveCtx := context.WithoutCancel(ctx)

	if result.Attempted > 0 {
		if err := s.state.Save(saveCtx, storage.KeyArticles, store.All()); err != nil {
			return AnalyzeReport{Batch: result}, errors.Join(runErr, fmt.Errorf("save articles: %w", err))
		}
	}

	if len(result.Alerts) > 0 {
		if err := s.recordAlerts(saveCtx, result.Alerts); err != nil {
			return AnalyzeReport{Batch: result}, errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		return AnalyzeReport{Batch: result, Status: partialStatus(result)}, runErr
	}

	return AnalyzeReport{
		Batch: result,
		Status: fmt.Sprintf("%s Analyzed %d items (%d fallback), %d alerts fired.",
			StatusProcessing, result.Attempted, result.Fallbacks, len(result.Alerts)),
	}, nil
}

func partialStatus(result enricher.BatchResult) string {
	return fmt.Sprintf("Analysis interrupted after %d items (%d fallback), %d alerts fired.",
		result.Attempted, result.Fallbacks, len(result.Alerts))
}

// History returns up to limit alert records, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	var history []model.AlertRecord
	if _, err := s.state.Load(ctx, storage.KeyAlertHistory, &history); err != nil {
		return nil, fmt.Errorf("load alert history: %w", err)
	}

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	return history, nil
}

func (s *Service) recordAlerts(ctx context.Context, alerts []model.AlertRecord) error {
	history, err := s.History(ctx, 0)
	if err != nil {
		return err
	}

	// the latest fired alert goes first
	fresh := lo.Reverse(append([]model.AlertRecord(nil), alerts...))
	history = append(fresh, history...)
	if len(history) > s.cfg.HistoryLimit {
		history = history[:s.cfg.HistoryLimit]
	}

	if err := s.state.Save(ctx, storage.KeyAlertHistory, history); err != nil {
		return fmt.Errorf("save alert history: %w", err)
	}

	return nil
}

func (s *Service) loadArticles(ctx context.Context) (*storage.ArticleStore, error) {
	var articles []model.Article
	if _, err := s.state.Load(ctx, storage.KeyArticles, &articles); err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}

	store := storage.NewArticleStore(s.cfg.MaxArticles)
	store.Load(articles)

	return store, nil
}

// Articles returns the stored articles, newest first.
func (s *Service) Articles(ctx context.Context) ([]model.Article, error) {
	store, err := s.loadArticles(ctx)
	if err != nil {
		return nil, err
	}

	return store.All(), nil
}
