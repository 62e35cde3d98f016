package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creditscan/internal/config"
	"creditscan/internal/preflight"
	"creditscan/internal/store"
)

// daemonHealth mirrors the daemon's /api/health response.
type daemonHealth struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Episodes      int    `json:"episodes"`
	Pending       int    `json:"pending"`
	Timings       int    `json:"timings"`
	Fingerprints  int    `json:"fingerprints"`
	Jobs          map[string]struct {
		LastRun time.Time `json:"last_run"`
		Error   string    `json:"error"`
		Runs    int       `json:"runs"`
	} `json:"jobs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency health and store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report := newStatusReport(out)

			report.section("Configuration")
			path := ctx.configPath
			if path == "" {
				path = "defaults"
			}
			report.line(statusInfo, "Config", path)
			report.line(statusInfo, "Library roots", strings.Join(cfg.Paths.LibraryRoots, ", "))

			report.section("Preflight")
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				switch {
				case !result.Passed:
					kind = statusError
				case result.Skipped:
					kind = statusSkipped
				}
				report.line(kind, result.Name, result.Detail)
			}

			report.section("Store")
			writeStoreStatus(cmd.Context(), cfg, report)

			return report.writeTo(out)
		},
	}
}

func writeStoreStatus(ctx context.Context, cfg *config.Config, report *statusReport) {
	st, err := store.Open(cfg)
	if err == nil {
		defer st.Close()
		counts, err := st.Stats(ctx)
		if err != nil {
			report.line(statusError, "Store", err.Error())
			return
		}
		report.line(statusInfo, "Daemon", "not running")
		report.line(statusOK, "Database", databaseDetail(st.Path()))
		writeCounts(report, counts.Episodes, counts.Pending, counts.Timings, counts.Fingerprints)
		return
	}
	if !errors.Is(err, store.ErrLocked) {
		report.line(statusError, "Store", err.Error())
		return
	}

	var health daemonHealth
	if err := newDaemonClient(cfg).get(ctx, "/api/health", nil, &health); err != nil {
		detail := err.Error()
		if errors.Is(err, errDaemonUnreachable) {
			detail = "store locked but no API answering on " + cfg.Paths.APIBind
		}
		report.line(statusWarn, "Daemon", detail)
		return
	}
	uptime := time.Duration(health.UptimeSeconds) * time.Second
	report.line(statusOK, "Daemon", "running for "+uptime.String())
	report.line(statusInfo, "Database", databaseDetail(cfg.DatabasePath()))
	writeCounts(report, health.Episodes, health.Pending, health.Timings, health.Fingerprints)
	names := make([]string, 0, len(health.Jobs))
	for name := range health.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		job := health.Jobs[name]
		kind := statusOK
		detail := fmt.Sprintf("%d runs, last %s", job.Runs, humanize.Time(job.LastRun))
		if job.Error != "" {
			kind = statusWarn
			detail += " (" + job.Error + ")"
		}
		report.line(kind, "Job "+name, detail)
	}
}

func databaseDetail(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(info.Size())))
}

func writeCounts(report *statusReport, episodes, pending, timings, fingerprints int) {
	report.count("Episodes", episodes, false)
	report.count("Pending", pending, true)
	report.count("Timings", timings, false)
	report.count("Fingerprints", fingerprints, false)
}
