// Package store persists creditscan's local state in SQLite: tracked episodes
// with their recorded file size and pending flags, detected and reference
// timings, fingerprint hashes for each search window, and small bookkeeping
// values such as the reference intro polling watermark.
//
// Open takes an exclusive lock file next to the database so at most one
// process writes at a time; busy errors are retried with backoff.
package store
