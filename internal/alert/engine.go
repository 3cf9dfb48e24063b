package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"sentinel/internal/model"
)

const genericLabel = "Marker"

// Engine turns one enriched article into alert records.
type Engine struct {
	newID func() string
	now   func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate returns one record per enabled trigger with at least one matching
// condition, in trigger order. Articles without analysis never match.
func (e *Engine) Evaluate(article model.Article, triggers []model.AlertTrigger) []model.AlertRecord {
	if article.Analysis == nil {
		return nil
	}

	var records []model.AlertRecord

	for _, trigger := range triggers {
		if !trigger.Enabled {
			continue
		}

		conditions := trigger.Conditions()
		matched := lo.ContainsBy(conditions, func(c model.Condition) bool {
			return c.Matches(article)
		})
		if !matched {
			continue
		}

		records = append(records, model.AlertRecord{
			ID:           e.newID(),
			Timestamp:    e.now().UTC(),
			ArticleTitle: article.Title,
			Channel:      trigger.Channel,
			Message:      Message(trigger, article),
		})
	}

	return records
}

// Message names the first labelled condition of the trigger (keyword before
// category) or a generic marker for sentiment only triggers.
func Message(trigger model.AlertTrigger, article model.Article) string {
	label := genericLabel
	for _, c := range trigger.Conditions() {
		if l := c.Label(); l != "" {
			label = l
			break
		}
	}

	return fmt.Sprintf("CRITICAL ALERT: Intelligence hit for [%s] in %s", label, article.Source)
}
