package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/go-shiori/go-readability"
	"github.com/samber/lo"

	"sentinel/internal/model"
)

const maxFeedBytes = 10 << 20

// RSSSource turns one RSS/Atom feed URL into article candidates.
type RSSSource struct {
	client  *http.Client
	limiter *HostRateLimiter
}

func NewRSSSource(client *http.Client, limiter *HostRateLimiter) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	return &RSSSource{
		client:  client,
		limiter: limiter,
	}
}

func (s *RSSSource) Fetch(ctx context.Context, feed model.Feed) ([]model.Article, error) {
	parsed, err := s.loadFeed(ctx, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
	}

	items := lo.Filter(parsed.Items, func(item *rss.Item, _ int) bool {
		return item != nil && itemID(item) != ""
	})

	return lo.Map(items, func(item *rss.Item, _ int) model.Article {
		return model.Article{
			ID:      itemID(item),
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			PubDate: item.Date.UTC(),
			Content: plainText(lo.Ternary(item.Summary != "", item.Summary, item.Content), item.Link),
			Source:  feed.Name,
		}
	}), nil
}

func (s *RSSSource) loadFeed(ctx context.Context, feedURL string) (*rss.Feed, error) {
	if s.limiter != nil {
		if err := s.limiter.WaitForHost(ctx, feedURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Sentinel/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	feed, err := rss.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

// itemID prefers the guid and falls back to the link.
func itemID(item *rss.Item) string {
	if id := strings.TrimSpace(item.ID); id != "" {
		return id
	}

	return strings.TrimSpace(item.Link)
}

var fallbackBase = &url.URL{Scheme: "https", Host: "localhost"}

// plainText reduces an HTML description to its text. Plain text and
// anything readability cannot handle is returned trimmed as is.
func plainText(content, link string) string {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "<") {
		return content
	}

	base, err := url.Parse(link)
	if err != nil || base.Host == "" {
		base = fallbackBase
	}

	article, err := readability.FromReader(strings.NewReader(content), base)
	if err != nil {
		return content
	}

	if text := strings.TrimSpace(article.TextContent); text != "" {
		return text
	}

	return content
}
