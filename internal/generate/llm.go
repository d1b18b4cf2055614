package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/hyperjump/kotae/internal/config"
)

const systemPrompt = "You are a research assistant helping a user understand an uploaded document. " +
	"Answer the question using only the provided document context. " +
	"Provide a well-structured and concise response, citing relevant passages from the context."

// LLMGenerator generates answers through an OpenAI-compatible chat endpoint.
// The client is built once and reused; every call is bounded by the
// configured timeout.
type LLMGenerator struct {
	llm     llms.Model
	timeout time.Duration
}

// NewLLMGenerator builds the chat client from config.
func NewLLMGenerator(cfg *config.GenerationConfig) (*LLMGenerator, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init generation client: %w", err)
	}
	return &LLMGenerator{
		llm:     llm,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// Generate joins the context chunks verbatim, sends them with the query, and
// returns the model's answer. Remote failure, timeout, or an empty response
// is reported as ErrGeneration.
func (g *LLMGenerator) Generate(ctx context.Context, query string, contextChunks []string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contextBlock := strings.Join(contextChunks, "\n\n")
	prompt := fmt.Sprintf("Document context:\n%s\n\nQuestion: %s", contextBlock, query)

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	resp, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}
