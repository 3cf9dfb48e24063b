package model

import (
	"errors"
	"fmt"
	"time"
)

type Category string

const (
	CategoryPolitics      Category = "Politics"
	CategoryTech          Category = "Tech"
	CategoryFinance       Category = "Finance"
	CategorySports        Category = "Sports"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryGeneral       Category = "General"
)

var Categories = []Category{
	CategoryPolitics,
	CategoryTech,
	CategoryFinance,
	CategorySports,
	CategoryEntertainment,
	CategoryHealth,
	CategoryGeneral,
}

var ErrUnknownCategory = errors.New("unknown category")

// ParseCategory matches the enumeration exactly, case included.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

type AnalysisResult struct {
	Summary    string   `json:"summary"`
	Category   Category `json:"category"`
	Sentiment  float64  `json:"sentiment"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
}

type Article struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Link      string          `json:"link"`
	PubDate   time.Time       `json:"pubDate"`
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	Processed bool            `json:"processed"`
	Analysis  *AnalysisResult `json:"analysis,omitempty"`
}

// Enriched returns a copy of the article carrying the analysis.
func (a Article) Enriched(analysis AnalysisResult) Article {
	a.Processed = true
	a.Analysis = &analysis
	return a
}

type Feed struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	Active    bool       `json:"active"`
	LastFetch *time.Time `json:"lastFetch,omitempty"`
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

var ErrUnknownChannel = errors.New("unknown channel")

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelWhatsApp:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// AlertRecord is an entry of the alert history. Records are never mutated.
type AlertRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ArticleTitle string    `json:"articleTitle"`
	Channel      Channel   `json:"channel"`
	Message      string    `json:"message"`
}
