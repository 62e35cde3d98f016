// Package ffprobe wraps the ffprobe JSON output needed by the scanner.
//
// Inspect runs ffprobe and returns the parsed Result; Duration is the
// shortcut used when only the container length matters.
package ffprobe
