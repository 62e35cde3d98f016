package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creditscan/internal/preflight"
	"creditscan/internal/scanner"
)

type reportView struct {
	ScanID    string  `json:"scan_id"`
	Directory string  `json:"directory"`
	Mode      string  `json:"mode"`
	Episodes  int     `json:"episodes"`
	Committed int     `json:"committed"`
	Failed    int     `json:"failed"`
	Seconds   float64 `json:"seconds"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan [dir...]",
		Short: "Detect intros and credits under the given directories (default: every library root)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := targetDirs(cfg, args)
			if err != nil {
				return err
			}
			if err := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); err != nil {
				return err
			}

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			var reports []scanner.Report
			for _, dir := range dirs {
				found, err := rt.scanner.ScanTree(cmd.Context(), dir)
				reports = append(reports, found...)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				views := make([]reportView, 0, len(reports))
				for _, r := range reports {
					views = append(views, viewOfReport(r))
				}
				return writeJSON(cmd, views)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReports(reports))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func viewOfReport(r scanner.Report) reportView {
	return reportView{
		ScanID:    r.ScanID,
		Directory: r.Directory,
		Mode:      r.Mode,
		Episodes:  r.Episodes,
		Committed: r.Committed,
		Failed:    r.Failed,
		Seconds:   r.Elapsed.Seconds(),
	}
}

func renderReports(reports []scanner.Report) string {
	if len(reports) == 0 {
		return "Nothing to scan"
	}
	rows := make([][]string, 0, len(reports))
	committed := 0
	var elapsed time.Duration
	for _, r := range reports {
		rows = append(rows, []string{
			r.Directory,
			r.Mode,
			strconv.Itoa(r.Episodes),
			strconv.Itoa(r.Committed),
			r.Elapsed.Round(time.Second).String(),
		})
		committed += r.Committed
		elapsed += r.Elapsed
	}
	footer := []string{
		fmt.Sprintf("%d directories", len(reports)),
		"",
		"",
		humanize.Comma(int64(committed)),
		elapsed.Round(time.Second).String(),
	}
	return renderTable(
		[]string{"Directory", "Mode", "Episodes", "Committed", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
		footer,
	)
}
