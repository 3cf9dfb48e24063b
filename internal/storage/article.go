package storage

import (
	"errors"
	"fmt"
	"sync"

	"sentinel/internal/model"
)

const DefaultMaxArticles = 500

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrAlreadyEnriched = errors.New("article already enriched")
	ErrNotEnriched     = errors.New("update carries no analysis")
)

// ArticleStore keeps articles newest first, deduplicated by ID and bounded
// to maxSize entries. Eviction is by recency only, processed or not.
type ArticleStore struct {
	mu       sync.RWMutex
	articles []model.Article
	index    map[string]int
	maxSize  int
}

func NewArticleStore(maxSize int) *ArticleStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxArticles
	}

	return &ArticleStore{
		index:   make(map[string]int),
		maxSize: maxSize,
	}
}

// Load replaces the content with a persisted snapshot, keeping its order.
func (s *ArticleStore) Load(articles []model.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.articles = s.articles[:0]
	s.index = make(map[string]int, len(articles))
	for _, article := range articles {
		if article.ID == "" {
			continue
		}
		if _, ok := s.index[article.ID]; ok {
			continue
		}
		s.index[article.ID] = len(s.articles)
		s.articles = append(s.articles, article)
	}

	s.truncate()
}

// Merge prepends candidates whose ID is not stored yet and returns them.
// Duplicates inside the batch collapse to their first occurrence.
func (s *ArticleStore) Merge(candidates []model.Article) []model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]model.Article, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, candidate := range candidates {
		if candidate.ID == "" {
			continue
		}
		if _, ok := s.index[candidate.ID]; ok {
			continue
		}
		if _, ok := seen[candidate.ID]; ok {
			continue
		}
		seen[candidate.ID] = struct{}{}
		fresh = append(fresh, candidate)
	}

	if len(fresh) == 0 {
		return fresh
	}

	merged := make([]model.Article, 0, len(fresh)+len(s.articles))
	merged = append(merged, fresh...)
	merged = append(merged, s.articles...)
	s.articles = merged

	s.truncate()

	return fresh
}

// SelectUnprocessed returns up to limit unprocessed articles in store order.
func (s *ArticleStore) SelectUnprocessed(limit int) []model.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return nil
	}

	selected := make([]model.Article, 0, limit)
	for _, article := range s.articles {
		if article.Processed {
			continue
		}
		selected = append(selected, article)
		if len(selected) == limit {
			break
		}
	}

	return selected
}

// Apply replaces the stored article with its enriched version. Enrichment is
// write-once: an already processed article cannot be replaced.
func (s *ArticleStore) Apply(update model.Article) error {
	if !update.Processed || update.Analysis == nil {
		return fmt.Errorf("apply %s: %w", update.ID, ErrNotEnriched)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[update.ID]
	if !ok {
		return fmt.Errorf("apply %s: %w", update.ID, ErrArticleNotFound)
	}
	if s.articles[i].Processed {
		return fmt.Errorf("apply %s: %w", update.ID, ErrAlreadyEnriched)
	}

	s.articles[i] = update

	return nil
}

func (s *ArticleStore) Get(id string) (model.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Article{}, false
	}

	return s.articles[i], true
}

// All returns a copy of the stored articles, newest first.
func (s *ArticleStore) All() []model.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Article, len(s.articles))
	copy(out, s.articles)

	return out
}

func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.articles)
}

func (s *ArticleStore) MaxSize() int {
	return s.maxSize
}

// truncate drops the tail beyond maxSize and rebuilds the index.
// Callers hold the write lock.
func (s *ArticleStore) truncate() {
	if len(s.articles) > s.maxSize {
		s.articles = s.articles[:s.maxSize:s.maxSize]
	}

	s.index = make(map[string]int, len(s.articles))
	for i, article := range s.articles {
		s.index[article.ID] = i
	}
}
