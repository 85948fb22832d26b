package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/proxy"
)

func proxyCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the sandbox reverse proxy",
		Long: `Routes HTTP and websocket traffic to sandbox containers by Host
header: <container-with-dashes>-<port>.<base-domain> maps to port
inside the named container.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Proxy.Port
			}
			logger.Info("proxy.starting", "port", port)
			return serveHTTP(fmt.Sprintf(":%d", port), proxy.New(logger).Handler())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default: proxy.port from settings)")
	return cmd
}

// serveHTTP runs an HTTP server until SIGINT/SIGTERM, then drains for
// up to five seconds.
func serveHTTP(addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
