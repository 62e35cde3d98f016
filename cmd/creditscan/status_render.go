package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// statusKind is the tag printed in front of every status line.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	// statusPending marks work the scanner still has queued.
	statusPending
	// statusSkipped marks an optional check that did not apply.
	statusSkipped
	statusWarn
	statusError
)

var statusTags = map[statusKind]struct {
	text  string
	color string
}{
	statusInfo:    {"info", "\x1b[34m"},
	statusOK:      {"ok", "\x1b[32m"},
	statusPending: {"queued", "\x1b[36m"},
	statusSkipped: {"skip", "\x1b[90m"},
	statusWarn:    {"warn", "\x1b[33m"},
	statusError:   {"fail", "\x1b[31m"},
}

const (
	ansiReset        = "\x1b[0m"
	ansiBold         = "\x1b[1m"
	statusTagWidth   = 8
	statusLabelWidth = 18
)

// statusReport collects the sections printed by the status command.
type statusReport struct {
	colorize bool
	lines    []string
}

func newStatusReport(out io.Writer) *statusReport {
	return &statusReport{colorize: shouldColorize(out)}
}

func (r *statusReport) section(title string) {
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	title = strings.ToUpper(strings.TrimSpace(title))
	if r.colorize {
		title = ansiBold + title + ansiReset
	}
	r.lines = append(r.lines, title)
}

func (r *statusReport) line(kind statusKind, label, detail string) {
	tag, ok := statusTags[kind]
	if !ok {
		tag = statusTags[statusInfo]
	}
	text := fmt.Sprintf("%-*s", statusTagWidth, "["+tag.text+"]")
	if r.colorize {
		text = tag.color + text + ansiReset
	}
	r.lines = append(r.lines, strings.TrimRight(fmt.Sprintf("  %s %-*s %s", text, statusLabelWidth, label, detail), " "))
}

// count prints n with thousands separators, tagged by countKind.
func (r *statusReport) count(label string, n int, queued bool) {
	r.line(countKind(n, queued), label, humanize.Comma(int64(n)))
}

func (r *statusReport) writeTo(out io.Writer) error {
	for _, line := range r.lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// countKind tags queue-like counts as pending while non-zero; plain totals are info.
func countKind(n int, queued bool) statusKind {
	switch {
	case !queued:
		return statusInfo
	case n > 0:
		return statusPending
	default:
		return statusOK
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
