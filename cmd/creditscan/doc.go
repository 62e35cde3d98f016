// Command creditscan detects intros and end credits in TV episodes and writes
// them into the Plex library database as skip markers.
//
// Scans can be run once from the command line or continuously with the
// daemon subcommand. Commands that only read state (pending, timings, status)
// fall back to the daemon's HTTP API when the daemon holds the local store.
package main
