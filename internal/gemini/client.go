// Package gemini wraps the Gemini API behind a minimal prompt-in,
// text-out interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrUnavailable marks provider failures: missing configuration,
// transport errors, or an empty API response. The error text ends up on
// the failed job record.
var ErrUnavailable = errors.New("llm provider unavailable")

const defaultModel = "gemini-1.5-flash"

// Client is a thin wrapper over the generative-ai-go client. A Client
// built without an API key stays usable and reports ErrUnavailable on
// every call, so analysis jobs fail cleanly instead of the process
// refusing to start.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient connects to the Gemini API. An empty apiKey yields an
// unconfigured client rather than an error.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = defaultModel
	}
	if apiKey == "" {
		return &Client{model: model}, nil
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Complete sends the prompt and returns the raw response text.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	m := c.client.GenerativeModel(c.model)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: response contained no text parts", ErrUnavailable)
	}
	return b.String(), nil
}
