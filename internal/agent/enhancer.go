package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

const enhanceMaxTokens = 8192

// EnhancePrompt rewrites a rough user draft into a precise instruction
// using a single model call, no tools.
func EnhancePrompt(ctx context.Context, provider providers.Provider, text string, files []string) (string, error) {
	if text == "" {
		return "", errors.New("nothing to enhance: text is empty")
	}
	resp, err := provider.Generate(ctx, providers.GenerateRequest{
		Messages: [][]providers.Block{
			{providers.TextPrompt(fmt.Sprintf(enhancePromptTemplate, promptWithFiles(text, files)))},
		},
		MaxTokens: enhanceMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("enhance prompt: %w", err)
	}
	for _, b := range resp.Blocks {
		if b.Type == providers.BlockTextResult && b.Text != "" {
			return b.Text, nil
		}
	}
	return "", errors.New("enhance prompt: model returned no text")
}
