package main

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/spf13/cobra"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/store"
)

type segmentRow struct {
	Category string  `json:"category"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

// episodeRow mirrors the daemon's /api/episodes entries.
type episodeRow struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Duration float64      `json:"duration"`
	MetaID   int64        `json:"meta_id"`
	Pending  bool         `json:"pending"`
	Segments []segmentRow `json:"segments"`
}

func newTimingsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "timings <dir>",
		Short: "Show stored intro and credits timings for the episodes in a directory",
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
			rows, err := loadTimings(cmd.Context(), cfg, dir)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, rows)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTimings(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func loadTimings(ctx context.Context, cfg *config.Config, dir string) ([]episodeRow, error) {
	var rows []episodeRow
	err := withStoreOrDaemon(cfg,
		func(st *store.Store) error {
			root := cfg.LibraryRootFor(dir)
			episodes, err := st.EpisodesForDirectory(ctx, root, episode.RelativeDir(root, dir))
			if err != nil {
				return err
			}
			for _, ep := range episodes {
				rows = append(rows, episodeRowOf(ep))
			}
			return nil
		},
		func(client *daemonClient) error {
			var resp struct {
				Episodes []episodeRow `json:"episodes"`
			}
			if err := client.get(ctx, "/api/episodes", url.Values{"dir": {dir}}, &resp); err != nil {
				return err
			}
			rows = resp.Episodes
			return nil
		},
	)
	return rows, err
}

func episodeRowOf(ep *episode.Episode) episodeRow {
	row := episodeRow{
		ID:       ep.ID,
		Name:     ep.Name,
		Duration: ep.Duration,
		MetaID:   ep.MetaID,
		Pending:  ep.DetectionPending || ep.SilenceDetectionPending,
	}
	if ep.Segments != nil {
		for _, seg := range ep.Segments.All() {
			row.Segments = append(row.Segments, segmentRow{Category: seg.Category(), Start: seg.Start, End: seg.End})
		}
	}
	return row
}

func renderTimings(rows []episodeRow) string {
	if len(rows) == 0 {
		return "No episodes recorded for this directory"
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		pending := ""
		if row.Pending {
			pending = "pending"
		}
		if len(row.Segments) == 0 {
			table = append(table, []string{row.Name, "-", "", "", "", pending})
			continue
		}
		for i, seg := range row.Segments {
			name := row.Name
			if i > 0 {
				name = ""
			}
			table = append(table, []string{
				name,
				seg.Category,
				formatTimestamp(seg.Start),
				formatTimestamp(seg.End),
				fmt.Sprintf("%.1fs", seg.End-seg.Start),
				pending,
			})
			pending = ""
		}
	}
	return renderTable(
		[]string{"Episode", "Category", "Start", "End", "Length", ""},
		table,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		nil,
	)
}

// formatTimestamp renders seconds as m:ss.s, or h:mm:ss.s past the hour.
func formatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int64(math.Round(seconds * 10))
	h := tenths / 36000
	m := (tenths / 600) % 60
	s := float64(tenths%600) / 10
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%04.1f", h, m, s)
	}
	return fmt.Sprintf("%d:%04.1f", m, s)
}
