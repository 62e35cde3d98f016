package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var undetected bool
	var silence bool

	cmd := &cobra.Command{
		Use:   "check [dir...]",
		Short: "Mark episodes that still need detection as pending",
		Long: "Walk the given directories (default: every library root) and mark episodes with " +
			"missing timings or outstanding silence detection as pending. The next scan or " +
			"daemon tick picks them up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := targetDirs(cfg, args)
			if err != nil {
				return err
			}
			cfg.Daemon.RecheckUndetectedOnStartup = undetected
			cfg.Daemon.RecheckSilenceOnStartup = silence

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			total := 0
			for _, dir := range dirs {
				marked, err := rt.scanner.CheckDirectory(cmd.Context(), dir)
				if err != nil {
					return err
				}
				total += marked
				fmt.Fprintf(out, "%s: %d episodes marked\n", dir, marked)
			}
			if len(dirs) > 1 {
				fmt.Fprintf(out, "Total: %d episodes marked\n", total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undetected, "undetected", true, "Mark episodes with missing intro or credits timings")
	cmd.Flags().BoolVar(&silence, "silence", true, "Mark episodes that still need silence detection")
	return cmd
}
