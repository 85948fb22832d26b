package contextmgr

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

const defaultEncoding = "cl100k_base"

// TokenCounter counts conversation tokens with tiktoken. Encodings are
// cached; an unknown model falls back to cl100k_base. When even the
// fallback is unavailable (offline first run), a chars/4 estimate is
// used so budgeting still works.
type TokenCounter struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	tried    bool
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (c *TokenCounter) encoder() *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tried {
		c.tried = true
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err == nil {
			c.encoding = enc
		}
	}
	return c.encoding
}

// CountText returns the token count of a string.
func (c *TokenCounter) CountText(text string) int {
	if enc := c.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// CountTurns returns the total token count of a conversation.
func (c *TokenCounter) CountTurns(turns [][]providers.Block) int {
	total := 0
	for _, turn := range turns {
		for _, b := range turn {
			switch b.Type {
			case providers.BlockTextPrompt, providers.BlockTextResult, providers.BlockThinking:
				total += c.CountText(b.Text)
			case providers.BlockToolCall:
				total += c.CountText(b.ToolName)
				total += c.CountText(fmt.Sprintf("%v", b.ToolInput))
			case providers.BlockToolResult:
				total += c.CountText(b.ToolOutput)
			}
		}
	}
	return total
}
