package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"codebase-rag/internal/config"
	"codebase-rag/internal/llmservice"
	"codebase-rag/internal/models"
	"codebase-rag/internal/retrieval"
)

const systemPrompt = `You are a codebase intelligence assistant. Answer questions about the provided code context. Cite the file paths you base your answer on. If the context does not contain the answer, say so instead of guessing.`

const emptyContext = "No relevant code found in the codebase."

// RAG answers questions about an indexed repository by retrieving
// relevant chunks and handing them to the generation model. Citation
// correctness is the generator's responsibility, not validated here.
type RAG struct {
	engine *retrieval.Engine
	cfg    *config.Config
}

func NewRAG(engine *retrieval.Engine, cfg *config.Config) *RAG {
	return &RAG{engine: engine, cfg: cfg}
}

// Answer retrieves context for the query from the collection and
// generates a cited answer.
func (r *RAG) Answer(ctx context.Context, collectionID, query string) (*models.PromptResponse, error) {
	bundle, err := r.engine.Retrieve(ctx, collectionID, query, r.cfg.Retrieval.SearchK)
	if err != nil {
		return nil, err
	}

	contextText := bundle.Context
	if bundle.Empty() {
		contextText = emptyContext
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)}},
		},
	}

	res, err := llmservice.GenerateContent(ctx, &r.cfg.Generation, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %v", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("generation model returned no choices")
	}

	return &models.PromptResponse{
		Query:   query,
		Sources: bundle.Sources(),
		Content: res.Choices[0].Content,
	}, nil
}
