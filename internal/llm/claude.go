package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeGenerator implements Generator against the Anthropic API.
type ClaudeGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// NewClaudeGenerator creates a Claude-backed generator.
func NewClaudeGenerator(apiKey, model string, logger *slog.Logger) *ClaudeGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeGenerator{
		client:    &c,
		model:     model,
		maxTokens: 4096,
		logger:    logger,
	}
}

// Generate sends one message to Claude and returns the first text block.
func (g *ClaudeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = resp.Content[i].Text
			break
		}
	}
	if responseText == "" {
		return "", fmt.Errorf("empty response from Claude")
	}

	g.logger.Debug("claude response", "model", g.model, "length", len(responseText))
	return responseText, nil
}
