// Package textgen provides the Gemini-backed text generation client used
// for hybrid completion and model-only query handling.
package textgen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Client wraps the Gemini API behind the pipeline's Generator contract.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Gemini client. The timeout bounds every Generate call so a
// slow upstream degrades the request instead of hanging it.
func New(ctx context.Context, apiKey, model string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
		log:     log.With().Str("client", "textgen").Logger(),
	}, nil
}

// Generate sends one prompt and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	})
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty reply from model %s", c.model)
	}

	c.log.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Int("reply_len", len(text)).
		Msg("Generated reply")

	return text, nil
}

// Model returns the configured model name, used for result metadata.
func (c *Client) Model() string {
	return c.model
}
