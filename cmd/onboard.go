package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Long: `Walks through the settings file: server port, workspace, sandbox
mode, and the default model. Secrets are never written to the file;
API keys stay in environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	path := resolveConfigPath()
	cfg := config.Default()

	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", path)).
			Value(&overwrite)
		if err := confirm.Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Keeping existing settings.")
			return nil
		}
	}

	portStr := strconv.Itoa(cfg.Port)
	modelName := cfg.DefaultModel
	spec := cfg.Models[modelName]

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server port").
				Value(&portStr).
				Validate(func(s string) error {
					p, err := strconv.Atoi(s)
					if err != nil || p <= 0 || p > 65535 {
						return fmt.Errorf("enter a port between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Workspace root").
				Description("Per-session workspaces are created under this directory").
				Value(&cfg.WorkspaceRoot),
			huh.NewSelect[string]().
				Title("Sandbox mode").
				Description("Where agent tools execute").
				Options(
					huh.NewOption("Local (host process, no isolation)", "local"),
					huh.NewOption("Docker (one container per session)", "docker"),
					huh.NewOption("Remote VM (external provisioning API)", "remote"),
				).
				Value(&cfg.Sandbox.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model registry name").
				Description("The name clients send to select this model").
				Value(&modelName),
			huh.NewSelect[string]().
				Title("Provider API").
				Options(huh.NewOptions("anthropic", "openai", "gemini")...).
				Value(&spec.APIType),
			huh.NewInput().
				Title("Model identifier").
				Description("The provider's model string").
				Value(&spec.Model),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Port, _ = strconv.Atoi(portStr)
	if spec.MaxRetries == 0 {
		spec.MaxRetries = 3
	}
	cfg.Models = map[string]config.ModelSpec{modelName: spec}
	cfg.DefaultModel = modelName

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	fmt.Printf("\nWrote %s\n\nNext steps:\n", path)
	fmt.Printf("  export %s=<your key>\n", apiKeyEnvVar(spec.APIType))
	if cfg.Sandbox.Mode == "docker" {
		fmt.Printf("  docker pull %s\n", cfg.Sandbox.Image)
	}
	fmt.Println("  agentd serve")
	return nil
}

func apiKeyEnvVar(apiType string) string {
	switch apiType {
	case "openai":
		return "AGENTD_OPENAI_API_KEY"
	case "gemini":
		return "AGENTD_GEMINI_API_KEY"
	default:
		return "AGENTD_ANTHROPIC_API_KEY"
	}
}
