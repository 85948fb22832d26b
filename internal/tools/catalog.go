package tools

import (
	"log/slog"

	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/toolops"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

// CatalogConfig assembles the tool set for one agent instance.
type CatalogConfig struct {
	Terminal  toolops.TerminalClient
	Files     toolops.FileClient
	Workspace *workspace.Manager
	Events    *bus.Queue
	Logger    *slog.Logger
	ToolArgs  protocol.ToolArgs

	// Reviewer selects the reviewer termination tool instead of the
	// interactive one.
	Reviewer bool
}

// BuildCatalog constructs the registry and the stop signal its
// termination tool flips. Flags whose backing capability isn't
// available are skipped with a warning rather than failing the init.
func BuildCatalog(cfg CatalogConfig) (*Registry, *StopSignal, error) {
	reg := NewRegistry()
	signal := &StopSignal{}

	base := []Tool{
		NewShellViewTool(cfg.Terminal),
		NewShellWaitTool(cfg.Terminal),
		NewShellWriteToProcessTool(cfg.Terminal),
		NewShellKillProcessTool(cfg.Terminal),
		NewShellExecTool(cfg.Terminal, cfg.Workspace),
		NewStrReplaceEditorTool(cfg.Files, cfg.Workspace, cfg.Events),
		NewMessageTool(),
		NewVisitWebpageTool(),
	}
	for _, t := range base {
		if err := reg.Register(t); err != nil {
			return nil, nil, err
		}
	}

	if cfg.ToolArgs.SequentialThinking {
		if err := reg.Register(NewSequentialThinkingTool()); err != nil {
			return nil, nil, err
		}
	}
	if cfg.ToolArgs.MemoryTool == "simple" {
		if err := reg.Register(NewSimpleMemoryTool()); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Logger != nil {
		for flag, enabled := range map[string]bool{
			"deep_research":    cfg.ToolArgs.DeepResearch,
			"pdf":              cfg.ToolArgs.PDF,
			"media_generation": cfg.ToolArgs.MediaGeneration,
			"audio_generation": cfg.ToolArgs.AudioGeneration,
			"browser":          cfg.ToolArgs.Browser,
		} {
			if enabled {
				cfg.Logger.Warn("tools.unavailable", "flag", flag)
			}
		}
	}

	var termination []Tool
	if cfg.Reviewer {
		termination = []Tool{NewReturnControlToGeneralAgentTool(signal)}
	} else {
		termination = []Tool{NewReturnControlToUserTool(signal), NewCompleteTool(signal)}
	}
	for _, t := range termination {
		if err := reg.Register(t); err != nil {
			return nil, nil, err
		}
	}
	return reg, signal, nil
}
