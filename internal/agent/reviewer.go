package agent

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

const reviewerFallbackFeedback = "ERROR: Reviewer did not provide text feedback"

// Reviewer critiques the primary agent's output with the same tool
// surface but an adversarial prompt. Its loop ends when the
// return_control_to_general_agent tool fires; it is then asked to
// write out the feedback, which the orchestrator feeds back to the
// primary agent as a user turn.
type Reviewer struct {
	loop *Loop
}

// NewReviewer builds a reviewer over a reviewer-mode tool catalog
// (termination tool return_control_to_general_agent).
func NewReviewer(cfg LoopConfig) (*Reviewer, error) {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = reviewerSystemPrompt()
	}
	loop, err := NewLoop(cfg)
	if err != nil {
		return nil, err
	}
	return &Reviewer{loop: loop}, nil
}

// Cancel propagates a user cancel into the reviewer loop.
func (r *Reviewer) Cancel() { r.loop.Cancel() }

// Review runs the full review and returns the written feedback.
func (r *Reviewer) Review(ctx context.Context, task, result, workspaceDir string) (string, error) {
	r.loop.history.Clear()

	if _, err := r.loop.Run(ctx, reviewInstruction(task, result, workspaceDir), nil, false); err != nil {
		return "", fmt.Errorf("reviewer run: %w", err)
	}

	if err := r.loop.history.AddUserPrompt(reviewSummaryRequest); err != nil {
		return "", fmt.Errorf("request review summary: %w", err)
	}
	resp, err := r.loop.generate(ctx, r.loop.history.Turns(), r.loop.maxTurns)
	if err != nil {
		return "", fmt.Errorf("review summary: %w", err)
	}
	r.loop.history.AddAssistantTurn(resp.Blocks)

	for _, b := range resp.Blocks {
		if b.Type == providers.BlockTextResult && b.Text != "" {
			return b.Text, nil
		}
	}
	return reviewerFallbackFeedback, nil
}
