package embedding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"codebase-rag/internal/config"
	"codebase-rag/internal/models"
)

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible
// endpoint (OpenAI, OpenRouter, vLLM and friends).
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key(), "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding LLM: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOllamaEmbedder creates an embedder backed by a local ollama server.
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding LLM: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}

// Client wraps an embedder with bounded retry. Retryable failures
// (timeouts, rate limits, server errors) back off exponentially up to
// the attempt ceiling; other client errors surface immediately. Either
// way an exhausted call returns a *models.EmbeddingError.
type Client struct {
	embedder        embeddings.Embedder
	maxRetries      uint64
	initialInterval time.Duration
}

// NewClient builds the embedder named by cfg.Type and wraps it.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	var (
		embedder embeddings.Embedder
		err      error
	)
	switch cfg.Type {
	case "ollama":
		embedder, err = NewOllamaEmbedder(cfg)
	case "openai", "":
		embedder, err = NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(embedder, cfg.MaxRetries), nil
}

// Wrap adds retry behavior around an existing embedder.
func Wrap(embedder embeddings.Embedder, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		embedder:        embedder,
		maxRetries:      uint64(maxRetries),
		initialInterval: 500 * time.Millisecond,
	}
}

// EmbedTexts embeds a batch of texts, one vector per text.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return retry(ctx, c, func() ([][]float32, error) {
		return c.embedder.EmbedDocuments(ctx, texts)
	})
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return retry(ctx, c, func() ([]float32, error) {
		return c.embedder.EmbedQuery(ctx, text)
	})
}

// retry runs op under the client's backoff policy: a bounded state
// machine of attempt count plus the caller's context deadline.
func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	attempts := 0
	var lastErr error

	wrapped := func() (T, error) {
		attempts++
		out, err := op()
		if err != nil {
			lastErr = err
			if !Retryable(err) {
				return out, backoff.Permanent(err)
			}
			log.Warn().Err(err).Int("attempt", attempts).Msg("embedding call failed, retrying")
		}
		return out, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	out, err := backoff.RetryWithData(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		var zero T
		// backoff reports ctx.Err() when cancelled between attempts;
		// callers must still see the cancellation, not the last HTTP
		// failure
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		return zero, &models.EmbeddingError{Status: StatusOf(lastErr), Attempts: attempts, Err: lastErr}
	}
	return out, nil
}

var statusRe = regexp.MustCompile(`status(?: code)?[:\s]+(\d{3})`)

// StatusOf extracts an HTTP status from an upstream error message,
// 0 when none is present.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	m := statusRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	status, _ := strconv.Atoi(m[1])
	return status
}

// Retryable classifies an embedding failure. Timeouts, rate limits and
// server errors are retryable; other client errors are not. Errors
// with no recognizable status are assumed transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch status := StatusOf(err); {
	case status == 0:
		return true
	case status == 408 || status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
