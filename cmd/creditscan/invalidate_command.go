package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"creditscan/internal/store"
)

func newInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <dir>",
		Short: "Discard detected timings below a directory and mark it for redetection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := libraryDir(cfg, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rt, err := ctx.openRuntime()
			if errors.Is(err, store.ErrLocked) {
				var resp map[string]string
				if err := newDaemonClient(cfg).post(cmd.Context(), "/api/invalidate", map[string]string{"path": dir}, &resp); err != nil {
					return err
				}
				fmt.Fprintf(out, "Invalidation of %s queued with the running daemon\n", dir)
				return nil
			}
			if err != nil {
				return err
			}
			defer rt.Close()

			marked, err := rt.scanner.InvalidateDirectory(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d episodes marked for redetection\n", dir, marked)
			return nil
		},
	}
}
