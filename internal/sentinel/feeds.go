package sentinel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"sentinel/internal/fetcher"
	"sentinel/internal/model"
	"sentinel/internal/storage"
)

var (
	ErrInvalidFeed   = errors.New("feed needs a name and an absolute http(s) URL")
	ErrDuplicateFeed = errors.New("feed URL already registered")
	ErrFeedNotFound  = errors.New("feed not found")
)

// DefaultFeeds is the feed list used until feeds are first saved.
func DefaultFeeds() []model.Feed {
	return []model.Feed{
		{ID: "1", Name: "BBC News - World", URL: "http://feeds.bbci.co.uk/news/world/rss.xml", Active: true},
		{ID: "2", Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Active: true},
		{ID: "3", Name: "Al Jazeera", URL: "https://www.aljazeera.com/xml/rss/all.xml", Active: true},
		{ID: "4", Name: "Financial Times", URL: "https://www.ft.com/news-feed?format=rss", Active: true},
		{ID: "5", Name: "The Verge", URL: "https://www.theverge.com/rss/index.xml", Active: true},
	}
}

func (s *Service) Feeds(ctx context.Context) ([]model.Feed, error) {
	var feeds []model.Feed

	found, err := s.state.Load(ctx, storage.KeyFeeds, &feeds)
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	if !found {
		return DefaultFeeds(), nil
	}

	return feeds, nil
}

func (s *Service) AddFeed(ctx context.Context, name, rawURL string) (model.Feed, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)

	if name == "" || !validFeedURL(rawURL) {
		return model.Feed{}, ErrInvalidFeed
	}

	var feed model.Feed

	err := s.updateFeeds(ctx, func(feeds []model.Feed) ([]model.Feed, error) {
		if lo.ContainsBy(feeds, func(f model.Feed) bool { return f.URL == rawURL }) {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDuplicateFeed)
		}

		feed = model.Feed{ID: s.newID(), Name: name, URL: rawURL, Active: true}
		return append(feeds, feed), nil
	})

	return feed, err
}

// ToggleFeed flips the active flag and returns the updated feed.
func (s *Service) ToggleFeed(ctx context.Context, id string) (model.Feed, error) {
	var feed model.Feed

	err := s.updateFeeds(ctx, func(feeds []model.Feed) ([]model.Feed, error) {
		_, i, ok := lo.FindIndexOf(feeds, func(f model.Feed) bool { return f.ID == id })
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrFeedNotFound)
		}

		feeds[i].Active = !feeds[i].Active
		feed = feeds[i]
		return feeds, nil
	})

	return feed, err
}

func (s *Service) RemoveFeed(ctx context.Context, id string) error {
	return s.updateFeeds(ctx, func(feeds []model.Feed) ([]model.Feed, error) {
		kept := lo.Reject(feeds, func(f model.Feed, _ int) bool { return f.ID == id })
		if len(kept) == len(feeds) {
			return nil, fmt.Errorf("%s: %w", id, ErrFeedNotFound)
		}

		return kept, nil
	})
}

// stampFeeds sets LastFetch on the feeds that were fetched without error.
// Feeds changed by management calls during the poll are kept as they are now.
func (s *Service) stampFeeds(ctx context.Context, results []fetcher.FeedResult) error {
	fetched := make(map[string]fetcher.FeedResult, len(results))
	for _, r := range results {
		if r.Err == nil {
			fetched[r.Feed.ID] = r
		}
	}
	if len(fetched) == 0 {
		return nil
	}

	return s.updateFeeds(ctx, func(feeds []model.Feed) ([]model.Feed, error) {
		for i := range feeds {
			if r, ok := fetched[feeds[i].ID]; ok {
				at := r.FetchedAt.UTC()
				feeds[i].LastFetch = &at
			}
		}

		return feeds, nil
	})
}

func (s *Service) updateFeeds(ctx context.Context, fn func([]model.Feed) ([]model.Feed, error)) error {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	feeds, err := s.Feeds(ctx)
	if err != nil {
		return err
	}

	updated, err := fn(feeds)
	if err != nil {
		return err
	}

	if err := s.state.Save(ctx, storage.KeyFeeds, updated); err != nil {
		return fmt.Errorf("save feeds: %w", err)
	}

	return nil
}

func validFeedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
