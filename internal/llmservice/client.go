package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"codebase-rag/internal/config"
)

// GenerateContent calls the configured generation model with the given
// messages. The model endpoint is built per call so generation config
// changes need no shared client state.
func GenerateContent(ctx context.Context, cfg *config.LLMConfig, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	log.Debug().Str("model", cfg.Model).Str("type", cfg.Type).Msg("generating content")

	llm, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	return llm.GenerateContent(ctx, messages)
}

func newModel(cfg *config.LLMConfig) (llms.Model, error) {
	switch cfg.Type {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key(), "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown generation model type %q", cfg.Type)
	}
}
