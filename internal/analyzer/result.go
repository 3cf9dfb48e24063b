package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"sentinel/internal/model"
)

const (
	// DefaultContentLimit bounds the content sent for analysis, in runes.
	DefaultContentLimit = 2000

	// DefaultChatContextLimit bounds the news digest given to Chat, in runes.
	DefaultChatContextLimit = 5000

	FallbackSummary = "Analysis unavailable. Please check system logs or API configuration."
)

// Fallback is attached when the analysis call fails.
func Fallback() model.AnalysisResult {
	return model.AnalysisResult{
		Summary:    FallbackSummary,
		Category:   model.CategoryGeneral,
		Sentiment:  0,
		Confidence: 0,
		Entities: model.Entities{
			People:        []string{},
			Organizations: []string{},
			Locations:     []string{},
		},
	}
}

// Truncate keeps at most limit runes of content.
func Truncate(content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}

	runes := []rune(content)
	return string(runes[:limit])
}

type resultPayload struct {
	Summary    *string  `json:"summary"`
	Category   *string  `json:"category"`
	Sentiment  *float64 `json:"sentiment"`
	Confidence *float64 `json:"confidence"`
	Entities   *struct {
		People        []string `json:"people"`
		Organizations []string `json:"organizations"`
		Locations     []string `json:"locations"`
	} `json:"entities"`
}

// ParseResult decodes a model answer and checks it against the analysis
// schema. Sentiment range is not enforced.
func ParseResult(text string) (model.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var payload resultPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case payload.Summary == nil:
		return model.AnalysisResult{}, fmt.Errorf("%w: missing summary", ErrMalformedResponse)
	case payload.Category == nil:
		return model.AnalysisResult{}, fmt.Errorf("%w: missing category", ErrMalformedResponse)
	case payload.Sentiment == nil:
		return model.AnalysisResult{}, fmt.Errorf("%w: missing sentiment", ErrMalformedResponse)
	case payload.Confidence == nil:
		return model.AnalysisResult{}, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	case payload.Entities == nil:
		return model.AnalysisResult{}, fmt.Errorf("%w: missing entities", ErrMalformedResponse)
	}

	category, err := model.ParseCategory(*payload.Category)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if c := *payload.Confidence; c < 0 || c > 1 {
		return model.AnalysisResult{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, c)
	}

	return model.AnalysisResult{
		Summary:    *payload.Summary,
		Category:   category,
		Sentiment:  *payload.Sentiment,
		Confidence: *payload.Confidence,
		Entities: model.Entities{
			People:        nonNil(payload.Entities.People),
			Organizations: nonNil(payload.Entities.Organizations),
			Locations:     nonNil(payload.Entities.Locations),
		},
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
