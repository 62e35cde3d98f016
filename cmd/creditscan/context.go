package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"creditscan/internal/config"
	"creditscan/internal/fingerprint"
	"creditscan/internal/logging"
	"creditscan/internal/media/ffmpeg"
	"creditscan/internal/media/ffprobe"
	"creditscan/internal/plexdb"
	"creditscan/internal/scanner"
	"creditscan/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// runtime holds the open stores and the scanner wired over them.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	plex    *plexdb.DB
	scanner *scanner.Scanner
}

func (c *commandContext) openRuntime() (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	plex, err := plexdb.Open(cfg.Paths.PlexDB)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sc, err := newScanner(cfg, st, plex, logger)
	if err != nil {
		_ = plex.Close()
		_ = st.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, store: st, plex: plex, scanner: sc}, nil
}

func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.plex.Close(), r.store.Close())
}

func newScanner(cfg *config.Config, st *store.Store, plex *plexdb.DB, logger *slog.Logger) (*scanner.Scanner, error) {
	cutter := ffmpeg.New(cfg.Tools.FFmpeg)
	engine := fingerprint.New(st, fingerprint.NewFpcalc(cfg.Tools.Fpcalc), cutter, fingerprint.Options{
		FrameRate: cfg.Detection.FrameRate,
		Logger:    logger,
	})
	ffprobeBinary := cfg.Tools.FFprobe
	return scanner.New(cfg, scanner.Dependencies{
		Store:  st,
		Meta:   plex,
		Cutter: cutter,
		Engine: engine,
		Probe: func(ctx context.Context, path string) (float64, error) {
			return ffprobe.Duration(ctx, ffprobeBinary, path)
		},
	}, logger)
}

// libraryDir expands arg and requires it to be an existing directory inside
// a configured library root.
func libraryDir(cfg *config.Config, arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	root := cfg.LibraryRootFor(path)
	for _, configured := range cfg.Paths.LibraryRoots {
		if filepath.Clean(configured) == root {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s is outside the configured library roots", path)
}

// targetDirs resolves command arguments to library directories, defaulting
// to every configured root.
func targetDirs(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		if len(cfg.Paths.LibraryRoots) == 0 {
			return nil, errors.New("no library_roots configured")
		}
		return cfg.Paths.LibraryRoots, nil
	}
	dirs := make([]string, 0, len(args))
	for _, arg := range args {
		dir, err := libraryDir(cfg, arg)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
