package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"creditscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The library root is <base>/library and is created; the Plex database path
// points at <base>/plex.db but the file is not created.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.TempDir = filepath.Join(base, "clips")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.PlexDB = filepath.Join(base, "plex.db")
	cfgVal.Paths.LibraryRoots = []string{filepath.Join(base, "library")}
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	if err := os.MkdirAll(cfgVal.Paths.LibraryRoots[0], 0o755); err != nil {
		t.Fatalf("mkdir library: %v", err)
	}

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDetection adjusts the default detection settings.
func WithDetection(mutate func(*config.Detection)) ConfigOption {
	return func(b *configBuilder) {
		mutate(&b.cfg.Detection)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and fpcalc are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "fpcalc"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// LibraryRoot returns the library root of a config built by NewConfig.
func LibraryRoot(cfg *config.Config) string {
	return cfg.Paths.LibraryRoots[0]
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
