package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/sandbox"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("agentd doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Settings: %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Settings load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s %s\n", "Kind:", cfg.Database.Kind)
	if cfg.Database.Kind == "postgres" {
		checkPostgres(cfg.Database.PostgresDSN)
	} else {
		path := config.ExpandHome(cfg.Database.Path)
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("    %-12s %s (will be created)\n", "Path:", path)
		} else {
			fmt.Printf("    %-12s %s (OK)\n", "Path:", path)
		}
	}

	fmt.Println()
	fmt.Println("  API keys:")
	checkAPIKey("Anthropic", cfg.AnthropicAPIKey)
	checkAPIKey("OpenAI", cfg.OpenAIAPIKey)
	checkAPIKey("Gemini", cfg.GeminiAPIKey)

	fmt.Println()
	fmt.Println("  Models:")
	if len(cfg.Models) == 0 {
		fmt.Println("    (none configured)")
	}
	for name, spec := range cfg.Models {
		marker := ""
		if name == cfg.DefaultModel {
			marker = " (default)"
		}
		fmt.Printf("    %-16s %s / %s%s\n", name+":", spec.APIType, spec.Model, marker)
	}

	fmt.Println()
	fmt.Printf("  Sandbox:  %s (registered: %s)\n", cfg.Sandbox.Mode, strings.Join(sandbox.Modes(), ", "))
	if cfg.Sandbox.Mode == "docker" {
		checkBinary("docker")
	}

	ws := config.ExpandHome(cfg.WorkspaceRoot)
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND, created on first session)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPostgres(dsn string) {
	if dsn == "" {
		fmt.Printf("    %-12s AGENTD_POSTGRES_DSN not set\n", "Status:")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s connected\n", "Status:")
}

func checkAPIKey(name, key string) {
	if key == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "(set)"
	if len(key) >= 12 {
		masked = key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
