package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.Detection.validate("detection")
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return errors.New("paths.temp_dir must be set")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if _, err := cron.ParseStandard(c.Daemon.ScanSchedule); err != nil {
		return fmt.Errorf("daemon.scan_schedule: %w", err)
	}
	if _, err := cron.ParseStandard(c.Daemon.IntroPollSchedule); err != nil {
		return fmt.Errorf("daemon.intro_poll_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
