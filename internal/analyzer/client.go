package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sentinel/internal/model"
)

var (
	ErrMisconfigured     = errors.New("analyzer misconfigured")
	ErrMalformedResponse = errors.New("malformed analysis response")
)

const systemPrompt = `You are a media intelligence analyst. Analyze the news article you are given and
answer with a single JSON object with exactly these fields:
"summary": a concise 2-3 sentence summary,
"category": one of Politics, Tech, Finance, Sports, Entertainment, Health, General,
"sentiment": number from -1 (very negative) to 1 (very positive),
"confidence": number from 0 to 1,
"entities": {"people": [string], "organizations": [string], "locations": [string]}.`

const analystPrompt = `You are Sentinel Analyst, an expert media intelligence AI.
You help users interpret news data, identify trends, and analyze global events.
Always be professional, insightful, and data-driven.
Context of currently loaded news:
`

type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client asks an OpenAI compatible chat completion endpoint for a JSON
// analysis of one article.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Analyze(ctx context.Context, title, content string) (model.AnalysisResult, error) {
	answer, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Title: %s\nContent Snippet: %s", title, content)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}

	return ParseResult(answer)
}

// Chat answers a free form question about the given news digest. The digest
// is cut to DefaultChatContextLimit runes.
func (c *Client) Chat(ctx context.Context, digest, question string) (string, error) {
	answer, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: analystPrompt + Truncate(digest, DefaultChatContextLimit)},
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(answer), nil
}

func (c *Client) complete(ctx context.Context, chat chatRequest) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", ErrMisconfigured
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("analyzer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return out.Choices[0].Message.Content, nil
}
