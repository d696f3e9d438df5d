// Package aiclient adapts an OpenAI-compatible endpoint to the completion and
// embedding calls used by enrichment.
package aiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Config holds the endpoint and model settings for Client.
type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int // requested embedding size; 0 leaves it to the model
	Temperature    float32
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Client calls the chat completion and embedding endpoints. It carries no
// enrichment logic.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New returns a Client for cfg. A missing API key is replaced by a
// placeholder so local gateways that ignore authentication still work.
func New(cfg Config, logger *slog.Logger) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:    openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}
}

// Complete sends prompt as a single user message and returns the raw text of
// the first choice. The model is asked for a JSON object.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := c.retry(ctx, "completion", func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("aiclient: no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Dimensions: c.cfg.Dimensions,
	}

	var resp openai.EmbeddingResponse
	err := c.retry(ctx, "embedding", func() error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("aiclient: no data in embedding response")
	}
	return resp.Data[0].Embedding, nil
}

// retry runs call up to MaxRetries times with linear backoff. Client errors
// other than rate limiting are not retried.
func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.cfg.RetryBackoff
			c.logger.Warn("retrying ai request",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("aiclient: %s: %w", op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err = call()
		if err == nil {
			return nil
		}
		c.logger.Error("ai request failed",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("aiclient: %s: %w", op, err)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
