package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/secrets-app/internal/config"
	"github.com/yourusername/secrets-app/internal/logging"
	"github.com/yourusername/secrets-app/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "secrets",
		Short:         "Secrets App server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newHashPasswordCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP server",
		Long: `Starts the HTTP server. Configuration is read from the environment
and from .env.local in the working directory or its parent.

	secrets serve
`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(os.Stderr, cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error(context.Background(), "failed to start server", "error", err)
		return err
	}
	return srv.Run(ctx)
}
