package model

import (
	"errors"
	"strings"
)

// ErrInertTrigger is returned for a trigger that carries no condition at all.
var ErrInertTrigger = errors.New("trigger has no keyword, category or sentiment threshold")

// AlertTrigger is a user rule. The optional fields are kept flat so the
// persisted form stays stable; evaluation goes through Conditions.
type AlertTrigger struct {
	ID                 string   `json:"id"`
	Keyword            string   `json:"keyword,omitempty"`
	Category           Category `json:"category,omitempty"`
	SentimentThreshold *float64 `json:"sentimentThreshold,omitempty"`
	Channel            Channel  `json:"channel"`
	Enabled            bool     `json:"enabled"`
}

// TriggerSpec is the user input for a new trigger.
type TriggerSpec struct {
	Keyword            string
	Category           string
	SentimentThreshold *float64
	Channel            string
}

// NewTrigger validates user input and builds an enabled trigger.
func NewTrigger(id string, spec TriggerSpec) (AlertTrigger, error) {
	channel, err := ParseChannel(spec.Channel)
	if err != nil {
		return AlertTrigger{}, err
	}

	trigger := AlertTrigger{
		ID:      id,
		Keyword: strings.TrimSpace(spec.Keyword),
		Channel: channel,
		Enabled: true,
	}

	// a zero threshold can never fire, so it is not a condition
	if spec.SentimentThreshold != nil && *spec.SentimentThreshold != 0 {
		threshold := *spec.SentimentThreshold
		trigger.SentimentThreshold = &threshold
	}

	if spec.Category != "" {
		category, err := ParseCategory(spec.Category)
		if err != nil {
			return AlertTrigger{}, err
		}
		trigger.Category = category
	}

	if len(trigger.Conditions()) == 0 {
		return AlertTrigger{}, ErrInertTrigger
	}

	return trigger, nil
}

// Condition is one independently evaluable predicate of a trigger.
type Condition interface {
	Matches(article Article) bool
	// Label names the condition in alert messages; empty when it has no
	// human readable marker.
	Label() string
}

type KeywordCondition struct {
	Keyword string
}

func (c KeywordCondition) Matches(article Article) bool {
	return strings.Contains(strings.ToLower(article.Title), strings.ToLower(c.Keyword))
}

func (c KeywordCondition) Label() string {
	return c.Keyword
}

type CategoryCondition struct {
	Category Category
}

func (c CategoryCondition) Matches(article Article) bool {
	return article.Analysis != nil && article.Analysis.Category == c.Category
}

func (c CategoryCondition) Label() string {
	return string(c.Category)
}

// SentimentCondition fires at or below a negative threshold and at or above a
// positive one. A zero threshold never fires.
type SentimentCondition struct {
	Threshold float64
}

func (c SentimentCondition) Matches(article Article) bool {
	if article.Analysis == nil {
		return false
	}

	sentiment := article.Analysis.Sentiment
	switch {
	case c.Threshold < 0:
		return sentiment <= c.Threshold
	case c.Threshold > 0:
		return sentiment >= c.Threshold
	default:
		return false
	}
}

func (c SentimentCondition) Label() string {
	return ""
}

// Conditions lists the set conditions in message priority order:
// keyword, category, sentiment.
func (t AlertTrigger) Conditions() []Condition {
	var conditions []Condition

	if t.Keyword != "" {
		conditions = append(conditions, KeywordCondition{Keyword: t.Keyword})
	}
	if t.Category != "" {
		conditions = append(conditions, CategoryCondition{Category: t.Category})
	}
	if t.SentimentThreshold != nil {
		conditions = append(conditions, SentimentCondition{Threshold: *t.SentimentThreshold})
	}

	return conditions
}
