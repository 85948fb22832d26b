// Package contextmgr keeps the conversation within the model's context
// window. When the transcript grows past the turn or token budget, old
// turns are folded into an LLM-written summary that replaces them.
package contextmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

const (
	DefaultTokenBudget    = 120000
	DefaultMaxSize        = 100
	defaultKeepFirst      = 1
	defaultMaxEventLength = 10000
	summaryMaxTokens      = 32000

	summaryPrefix = "Conversation Summary: "
	noPrevSummary = "No events summarized"
)

// Manager condenses conversation history via LLM summarization.
type Manager struct {
	client  providers.Provider
	counter *TokenCounter
	logger  *slog.Logger

	TokenBudget    int
	MaxSize        int
	KeepFirst      int
	MaxEventLength int
}

func NewManager(client providers.Provider, counter *TokenCounter, logger *slog.Logger) *Manager {
	return &Manager{
		client:         client,
		counter:        counter,
		logger:         logger,
		TokenBudget:    DefaultTokenBudget,
		MaxSize:        DefaultMaxSize,
		KeepFirst:      defaultKeepFirst,
		MaxEventLength: defaultMaxEventLength,
	}
}

// CountTokens returns the token total for a transcript.
func (m *Manager) CountTokens(turns [][]providers.Block) int {
	return m.counter.CountTurns(turns)
}

// ShouldTruncate reports whether the transcript exceeds the turn-count
// or token budget.
func (m *Manager) ShouldTruncate(turns [][]providers.Block) bool {
	return len(turns) > m.MaxSize || m.counter.CountTurns(turns) > m.TokenBudget
}

// ApplyTruncation condenses the transcript if needed and returns the
// (possibly unchanged) turn list. Transcripts carrying thinking blocks
// use a more conservative cut that never splits the turns after the
// last user prompt, since thinking signatures must travel with their
// original context.
func (m *Manager) ApplyTruncation(ctx context.Context, turns [][]providers.Block) [][]providers.Block {
	if hasThinkingBlocks(turns) {
		return m.truncateWithThinking(ctx, turns)
	}
	return m.truncateHeadTail(ctx, turns)
}

func hasThinkingBlocks(turns [][]providers.Block) bool {
	for _, turn := range turns {
		for _, b := range turn {
			if b.Type == providers.BlockThinking || b.Type == providers.BlockRedactedThinking {
				return true
			}
		}
	}
	return false
}

func lastTextPromptIndex(turns [][]providers.Block) int {
	for i := len(turns) - 1; i >= 0; i-- {
		for _, b := range turns[i] {
			if b.Type == providers.BlockTextPrompt {
				return i
			}
		}
	}
	return len(turns) - 1
}

func (m *Manager) truncateWithThinking(ctx context.Context, turns [][]providers.Block) [][]providers.Block {
	lastPrompt := lastTextPromptIndex(turns)
	if lastPrompt <= 0 {
		return turns
	}

	targetSize := min(m.MaxSize, len(turns)) / 2
	lastSummaryIdx := min(lastPrompt, m.KeepFirst+targetSize)
	toSummarize := turns[m.KeepFirst:lastSummaryIdx]
	toKeep := turns[lastSummaryIdx:]

	if len(toSummarize) <= 1 {
		m.logger.Info("contextmgr.skip", "reason", "nothing to summarize")
		return turns
	}

	summary := m.generateSummary(ctx, toSummarize, noPrevSummary)

	condensed := make([][]providers.Block, 0, m.KeepFirst+1+len(toKeep))
	condensed = append(condensed, turns[:m.KeepFirst]...)
	condensed = append(condensed, []providers.Block{providers.TextResult(summaryPrefix + summary)})
	condensed = append(condensed, toKeep...)

	m.logger.Info("contextmgr.condensed",
		"from", len(turns), "to", len(condensed),
		"head", m.KeepFirst, "kept_tail", len(toKeep))
	return condensed
}

func (m *Manager) truncateHeadTail(ctx context.Context, turns [][]providers.Block) [][]providers.Block {
	head := turns[:min(m.KeepFirst, len(turns))]
	targetSize := min(m.MaxSize, len(turns)) / 2
	tailLen := targetSize - len(head) - 1

	// A previous summary sits right after the head; chain it into the
	// next one instead of summarizing the summary as an ordinary turn.
	prevSummary := noPrevSummary
	summaryStart := m.KeepFirst
	if len(turns) > m.KeepFirst && len(turns[m.KeepFirst]) > 0 {
		if first := turns[m.KeepFirst][0]; strings.HasPrefix(first.Text, strings.TrimSpace(summaryPrefix)) {
			prevSummary = first.Text
			summaryStart = m.KeepFirst + 1
		}
	}

	var forgotten [][]providers.Block
	if tailLen > 0 {
		forgotten = turns[summaryStart : len(turns)-tailLen]
	} else {
		forgotten = turns[summaryStart:]
		tailLen = 0
	}
	if len(forgotten) == 0 {
		return turns
	}

	// The tail must not open with tool results whose calls were
	// summarized away; widen the forgotten range past any such orphans.
	tail := turns[len(turns)-tailLen:]
	for len(tail) > 0 && startsWithToolResult(tail[0]) {
		forgotten = append(forgotten, tail[0])
		tail = tail[1:]
	}

	summary := m.generateSummary(ctx, forgotten, prevSummary)

	condensed := make([][]providers.Block, 0, len(head)+1+len(tail))
	condensed = append(condensed, head...)
	condensed = append(condensed, []providers.Block{providers.TextResult(summaryPrefix + summary)})
	condensed = append(condensed, tail...)

	m.logger.Info("contextmgr.condensed",
		"from", len(turns), "to", len(condensed),
		"head", len(head), "tail", len(tail))
	return condensed
}

func startsWithToolResult(turn []providers.Block) bool {
	return len(turn) > 0 && turn[0].Type == providers.BlockToolResult
}

func (m *Manager) generateSummary(ctx context.Context, forgotten [][]providers.Block, prevSummary string) string {
	prompt := summaryPrompt

	prev := ""
	if prevSummary != noPrevSummary {
		prev = strings.Replace(prevSummary, summaryPrefix, "", 1)
	}
	prompt += fmt.Sprintf("<PREVIOUS SUMMARY>\n%s\n</PREVIOUS SUMMARY>\n\n", m.truncateContent(prev))

	for i, turn := range forgotten {
		prompt += fmt.Sprintf("<EVENT id=%d>\n%s\n</EVENT>\n", i, m.truncateContent(turnToString(turn)))
	}
	prompt += "\nNow summarize the events using the rules above."

	summary, err := m.callSummarizer(ctx, prompt)
	if err != nil {
		m.logger.Error("contextmgr.summarize.failed", "error", err)
		return fmt.Sprintf("Failed to summarize %d events due to error: %s", len(forgotten), err)
	}
	m.logger.Info("contextmgr.summarized", "forgotten", len(forgotten))
	return summary
}

// CompleteSummary summarizes the entire transcript. Used by /compact.
func (m *Manager) CompleteSummary(ctx context.Context, turns [][]providers.Block) string {
	if len(turns) == 0 {
		return "No conversation history to summarize."
	}

	var conversation strings.Builder
	for i, turn := range turns {
		fmt.Fprintf(&conversation, "<TURN id=%d>\n%s\n</TURN>\n\n", i, turnToString(turn))
	}

	prompt := summaryPrompt
	prompt += fmt.Sprintf("<CONVERSATION>\n%s\n</CONVERSATION>\n\n", conversation.String())
	prompt += "Now summarize the conversation using the rules above."

	summary, err := m.callSummarizer(ctx, prompt)
	if err != nil {
		m.logger.Error("contextmgr.compact.failed", "error", err)
		return fmt.Sprintf("Failed to summarize conversation due to error: %s", err)
	}
	m.logger.Info("contextmgr.compacted", "turns", len(turns))
	return summary
}

func (m *Manager) callSummarizer(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Generate(ctx, providers.GenerateRequest{
		Messages:  [][]providers.Block{{providers.TextPrompt(prompt)}},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	var summary string
	for _, b := range resp.Blocks {
		if b.Type == providers.BlockTextResult {
			summary += b.Text
		}
	}
	return summary, nil
}

func (m *Manager) truncateContent(content string) string {
	if len(content) <= m.MaxEventLength {
		return content
	}
	return content[:m.MaxEventLength] + "... [truncated]"
}

func turnToString(turn []providers.Block) string {
	var parts []string
	for _, b := range turn {
		switch b.Type {
		case providers.BlockTextPrompt:
			parts = append(parts, "USER: "+b.Text)
		case providers.BlockTextResult:
			parts = append(parts, "ASSISTANT: "+b.Text)
		case providers.BlockThinking:
			parts = append(parts, "ASSISTANT: "+b.Text)
		case providers.BlockRedactedThinking:
			continue
		case providers.BlockToolCall:
			parts = append(parts, fmt.Sprintf("TOOL_CALL: %s %v", b.ToolName, b.ToolInput))
		case providers.BlockToolResult:
			parts = append(parts, "TOOL_RESULT: "+b.ToolOutput)
		}
	}
	return strings.Join(parts, "\n")
}
