package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CREDITSCAN_PLEX_DB"); ok && strings.TrimSpace(value) != "" {
		c.Paths.PlexDB = value
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.PlexDB, err = expandPath(c.Paths.PlexDB); err != nil {
		return fmt.Errorf("paths.plex_db: %w", err)
	}

	roots := make([]string, 0, len(c.Paths.LibraryRoots))
	for _, root := range c.Paths.LibraryRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("paths.library_roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.Paths.LibraryRoots = roots

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTools() {
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	if strings.TrimSpace(c.Tools.Fpcalc) == "" {
		c.Tools.Fpcalc = defaultFpcalc
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.ScanSchedule = strings.TrimSpace(c.Daemon.ScanSchedule)
	if c.Daemon.ScanSchedule == "" {
		c.Daemon.ScanSchedule = defaultScanSchedule
	}
	c.Daemon.IntroPollSchedule = strings.TrimSpace(c.Daemon.IntroPollSchedule)
	if c.Daemon.IntroPollSchedule == "" {
		c.Daemon.IntroPollSchedule = defaultIntroPollSchedule
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("CREDITSCAN_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
