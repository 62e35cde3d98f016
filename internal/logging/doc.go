// Package logging assembles structured slog loggers and formatting helpers used
// across creditscan.
//
// It owns the console and JSON handlers, picks between them for the "auto"
// format depending on whether stdout is a terminal, and exposes helpers that
// keep warning and error lines carrying an event type and an operator hint.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
