package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"sentinel/internal/metrics"
	"sentinel/internal/model"
)

var ErrNoSource = errors.New("fetcher has no feed source")

type Source interface {
	Fetch(ctx context.Context, feed model.Feed) ([]model.Article, error)
}

type ArticleStore interface {
	Merge(candidates []model.Article) []model.Article
	Len() int
}

// FeedResult is the outcome of fetching one active feed.
type FeedResult struct {
	Feed      model.Feed
	Items     int
	FetchedAt time.Time
	Err       error
}

// PollResult aggregates one poll over all active feeds.
type PollResult struct {
	Feeds    []FeedResult
	Fetched  int
	Inserted []model.Article
}

func (r PollResult) New() int {
	return len(r.Inserted)
}

func (r PollResult) Failed() []FeedResult {
	return lo.Filter(r.Feeds, func(fr FeedResult, _ int) bool { return fr.Err != nil })
}

// Status is the short human readable summary shown to operators.
func (r PollResult) Status() string {
	status := fmt.Sprintf("Polled %d feeds. Found %d items, %d new.", len(r.Feeds), r.Fetched, r.New())

	failed := r.Failed()
	if len(failed) == 0 {
		return status
	}

	names := lo.Map(failed, func(fr FeedResult, _ int) string { return fr.Feed.Name })
	return fmt.Sprintf("%s %d of %d feeds failed: %s.", status, len(failed), len(r.Feeds), strings.Join(names, ", "))
}

type Fetcher struct {
	source      Source
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func New(source Source, concurrency int, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		source:      source,
		concurrency: concurrency,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// Poll fetches every active feed concurrently and merges the combined items
// into the store once all fetches have finished. A failing feed contributes
// zero items and never aborts the others.
func (f *Fetcher) Poll(ctx context.Context, store ArticleStore, feeds []model.Feed) (PollResult, error) {
	if f.source == nil {
		return PollResult{}, ErrNoSource
	}

	active := lo.Filter(feeds, func(feed model.Feed, _ int) bool { return feed.Active })
	if len(active) == 0 {
		return PollResult{}, nil
	}

	results := make([]FeedResult, len(active))
	items := make([][]model.Article, len(active))
	sem := make(chan struct{}, f.concurrency)

	var wg sync.WaitGroup

	for i, feed := range active {
		wg.Add(1)

		go func(i int, feed model.Feed) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			articles, err := f.source.Fetch(ctx, feed)
			if err != nil {
				f.logger.Warn("feed fetch failed", "feed", feed.Name, "url", feed.URL, "error", err)
				articles = nil
			}

			items[i] = articles
			results[i] = FeedResult{Feed: feed, Items: len(articles), FetchedAt: f.now(), Err: err}
			f.metrics.FeedFetched(err == nil, len(articles))
		}(i, feed)
	}

	wg.Wait()

	candidates := lo.Flatten(items)
	inserted := store.Merge(candidates)
	f.metrics.Merged(len(inserted), store.Len())

	result := PollResult{
		Feeds:    results,
		Fetched:  len(candidates),
		Inserted: inserted,
	}

	f.logger.Info("poll finished",
		"feeds", len(active),
		"fetched", result.Fetched,
		"new", result.New(),
		"failed", len(result.Failed()),
	)

	return result, nil
}
