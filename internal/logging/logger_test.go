package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"creditscan/internal/config"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	content := readFile(t, filepath.Join(cfg.Paths.LogDir, "creditscan.log"))
	if !strings.Contains(content, `"msg":"hello"`) {
		t.Fatalf("expected json line in log file: %q", content)
	}
}

func TestFileReceivesJSONAlongsideConsole(t *testing.T) {
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")
	logger, err := logging.New(logging.Options{Format: "console", Output: &console, File: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "daemon").Info("job finished", logging.String("job", "scan"))

	if !strings.Contains(console.String(), "daemon: job finished") {
		t.Fatalf("expected console line: %q", console.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readFile(t, logPath))), &entry); err != nil {
		t.Fatalf("decode file log: %v", err)
	}
	if entry["msg"] != "job finished" || entry["job"] != "scan" || entry[logging.FieldComponent] != "daemon" {
		t.Fatalf("unexpected file entry: %v", entry)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	scanner := logging.NewComponentLogger(logger, "scanner")
	scanner.Info("episode committed", logging.String(logging.FieldDirectory, "Show/Season 1"), logging.Int("segments", 2))
	scanner.Debug("hidden")

	content := buf.String()
	if !strings.Contains(content, "INFO  scanner: episode committed") {
		t.Fatalf("missing component prefix: %q", content)
	}
	if !strings.Contains(content, `directory="Show/Season 1"`) {
		t.Fatalf("expected quoted directory field: %q", content)
	}
	if !strings.Contains(content, "segments=2") {
		t.Fatalf("expected segments field: %q", content)
	}
	if strings.Contains(content, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no source information at info level: %q", content)
	}
}

func TestConsoleLoggerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.WithGroup("window").Info("search", logging.Float64("start", 0), logging.Float64("end", 132.5))

	content := buf.String()
	if !strings.Contains(content, "window.start=0") || !strings.Contains(content, "window.end=132.5") {
		t.Fatalf("expected grouped keys: %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.ErrorWithContext(logger, "cut failed", "clip_cut_failed", logging.Error(errors.New("exit status 1")))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "error" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key: %v", entry)
	}
	if entry[logging.FieldEventType] != "clip_cut_failed" {
		t.Fatalf("expected event type: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint: %v", entry)
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "no metadata", "metadata_missing", logging.String(logging.FieldImpact, "episode skipped"))

	content := buf.String()
	if strings.Count(content, `"impact"`) != 1 || !strings.Contains(content, "episode skipped") {
		t.Fatalf("expected caller impact to be kept: %q", content)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSegmentAttrGroupsBounds(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("match", logging.Segment("segment", segments.Segment{Start: 1250.00049, End: 1310.5, IsCredits: true}))

	content := buf.String()
	for _, want := range []string{"segment.category=credits", "segment.start=1250", "segment.end=1310.5"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}
