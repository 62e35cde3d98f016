package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"creditscan/internal/daemon"
	"creditscan/internal/logging"
	"creditscan/internal/preflight"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled scans and the status API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := preflight.Failed(preflight.RunAll(signalCtx, cfg)); err != nil {
				return err
			}

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := daemon.New(cfg, rt.scanner, rt.store, rt.logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			rt.logger.Info("starting creditscan daemon",
				logging.String("config", ctx.configPath),
				logging.String("api_bind", cfg.Paths.APIBind),
				logging.Int("library_roots", len(cfg.Paths.LibraryRoots)),
			)
			return d.Run(signalCtx)
		},
	}
}
