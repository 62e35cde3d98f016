// Package daemon runs creditscan as a long-lived service.
//
// It performs the optional startup recheck of the library roots, then drives
// the scanner from cron schedules: pending directories are scanned on
// ScanSchedule and new Plex reference intros are picked up on
// IntroPollSchedule. Jobs share one mutex so scanner work never overlaps, and
// a cron job still running when its next tick arrives is skipped.
//
// A small JSON API on Paths.APIBind reports health and pending work and
// accepts invalidation requests. Invalidation only marks directories pending;
// the next scheduled scan does the work.
package daemon
