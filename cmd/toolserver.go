package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/toolserver"
)

func toolserverCmd() *cobra.Command {
	var (
		port              int
		workDir           string
		ignoreIndentation bool
	)
	cmd := &cobra.Command{
		Use:   "toolserver",
		Short: "Run the in-sandbox tool server",
		Long: `Exposes shell sessions and file editing over HTTP for the
orchestrator's remote tool clients. Runs inside the sandbox container
or VM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Sandbox.ServicePort
			}
			if workDir == "" {
				workDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			var opts []toolserver.Option
			if ignoreIndentation {
				opts = append(opts, toolserver.WithIgnoreIndentation())
			}
			srv := toolserver.New(workDir, logger, opts...)
			defer srv.Close()

			logger.Info("toolserver.starting", "port", port, "workdir", workDir)
			return serveHTTP(fmt.Sprintf(":%d", port), srv.Handler())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default: sandbox.service_port from settings)")
	cmd.Flags().StringVarP(&workDir, "workdir", "w", "", "working directory for shell and file operations (default: cwd)")
	cmd.Flags().BoolVar(&ignoreIndentation, "ignore-indentation", false, "match str_replace edits ignoring leading whitespace")
	return cmd
}
