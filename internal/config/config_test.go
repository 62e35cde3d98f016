package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"creditscan/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "creditscan")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Detection.MaximumMatches() != 2 {
		t.Fatalf("expected two required matches by default, got %d", cfg.Detection.MaximumMatches())
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "creditscan.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	contents := map[string]any{
		"paths": map[string]any{
			"data_dir":      filepath.Join(dir, "data"),
			"library_roots": []string{filepath.Join(dir, "tv")},
		},
		"logging": map[string]any{
			"format": "json",
		},
		"detection": map[string]any{
			"intro_match_count": 2,
			"use_video":         true,
		},
	}
	data, err := toml.Marshal(contents)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CREDITSCAN_PLEX_DB="+filepath.Join(dir, "plex.db")+"\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CREDITSCAN_PLEX_DB") })

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Detection.IntroMatchCount != 2 || !cfg.Detection.UseVideo {
		t.Fatalf("detection overrides not applied: %+v", cfg.Detection)
	}
	if cfg.Paths.PlexDB != filepath.Join(dir, "plex.db") {
		t.Fatalf("expected plex db from .env, got %q", cfg.Paths.PlexDB)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"intro fraction", func(c *config.Config) { c.Detection.IntroEnd = 1.5 }, "intro_end"},
		{"intro order", func(c *config.Config) { c.Detection.IntroStart = 0.6 }, "intro_start"},
		{"schedule", func(c *config.Config) { c.Daemon.ScanSchedule = "whenever" }, "scan_schedule"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"accuracy", func(c *config.Config) { c.Detection.AudioAccuracy = 0 }, "accuracy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSettingsForAppliesNestedOverrides(t *testing.T) {
	root := t.TempDir()
	show := filepath.Join(root, "Show")
	season := filepath.Join(show, "Season 1")
	if err := os.MkdirAll(season, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeOverride(t, show, "intro_end = 1\ncredits_match_count = 0\n")
	writeOverride(t, season, "[detection]\nintro_end = 0.25\nuse_video = \"true\"\n")

	cfg := config.Default()
	cfg.Paths.LibraryRoots = []string{root}

	settings, err := cfg.SettingsFor(season)
	if err != nil {
		t.Fatalf("SettingsFor: %v", err)
	}
	if settings.IntroEnd != 0.25 {
		t.Fatalf("expected closest override to win, got intro_end=%v", settings.IntroEnd)
	}
	if settings.CreditsMatchCount != 0 {
		t.Fatalf("expected parent override to apply, got %d", settings.CreditsMatchCount)
	}
	if !settings.UseVideo {
		t.Fatal("expected string bool to be coerced")
	}

	parent, err := cfg.SettingsFor(show)
	if err != nil {
		t.Fatalf("SettingsFor(show): %v", err)
	}
	if parent.IntroEnd != 1 {
		t.Fatalf("expected integer override coerced to 1.0, got %v", parent.IntroEnd)
	}
	if cfg.Detection.IntroEnd != 0.5 {
		t.Fatalf("base settings mutated: %v", cfg.Detection.IntroEnd)
	}
}

func TestSettingsForRejectsUnknownKeys(t *testing.T) {
	root := t.TempDir()
	writeOverride(t, root, "intro_length = 4\n")

	cfg := config.Default()
	cfg.Paths.LibraryRoots = []string{root}
	if _, err := cfg.SettingsFor(root); err == nil {
		t.Fatal("expected unknown override key to fail")
	}
}

func TestLibraryRootForPrefersDeepestRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LibraryRoots = []string{"/media", "/media/tv"}

	if got := cfg.LibraryRootFor("/media/tv/Show/Season 1"); got != "/media/tv" {
		t.Fatalf("unexpected root: %q", got)
	}
	if got := cfg.LibraryRootFor("/media/tvshows"); got != "/media" {
		t.Fatalf("unexpected root for sibling prefix: %q", got)
	}
	if got := cfg.LibraryRootFor("/other/dir"); got != "/other/dir" {
		t.Fatalf("expected path itself outside roots, got %q", got)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func writeOverride(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, config.OverrideFileName), []byte(contents), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
}
