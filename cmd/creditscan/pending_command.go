package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creditscan/internal/config"
	"creditscan/internal/store"
)

// pendingRow mirrors the daemon's /api/pending entries.
type pendingRow struct {
	ID                      string    `json:"id"`
	Dir                     string    `json:"dir"`
	DetectionPending        bool      `json:"detection_pending"`
	SilenceDetectionPending bool      `json:"silence_detection_pending"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List episodes waiting for detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rows, err := loadPending(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, rows)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPending(rows, time.Now()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func loadPending(ctx context.Context, cfg *config.Config) ([]pendingRow, error) {
	var rows []pendingRow
	err := withStoreOrDaemon(cfg,
		func(st *store.Store) error {
			records, err := st.PendingRecords(ctx)
			if err != nil {
				return err
			}
			for _, rec := range records {
				rows = append(rows, pendingRow{
					ID:                      rec.ID,
					Dir:                     rec.Dir,
					DetectionPending:        rec.DetectionPending,
					SilenceDetectionPending: rec.SilenceDetectionPending,
					UpdatedAt:               rec.UpdatedAt,
				})
			}
			return nil
		},
		func(client *daemonClient) error {
			var resp struct {
				Episodes []pendingRow `json:"episodes"`
			}
			if err := client.get(ctx, "/api/pending", nil, &resp); err != nil {
				return err
			}
			rows = resp.Episodes
			return nil
		},
	)
	return rows, err
}

func renderPending(rows []pendingRow, now time.Time) string {
	if len(rows) == 0 {
		return "No episodes pending"
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		updated := "-"
		if !row.UpdatedAt.IsZero() {
			updated = humanize.RelTime(row.UpdatedAt, now, "ago", "from now")
		}
		table = append(table, []string{row.ID, yesNo(row.DetectionPending), yesNo(row.SilenceDetectionPending), updated})
	}
	return renderTable(
		[]string{"Episode", "Detection", "Silence", "Updated"},
		table,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		[]string{fmt.Sprintf("%s episodes", humanize.Comma(int64(len(rows))))},
	)
}
