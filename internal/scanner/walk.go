package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
)

// listDirectory returns the sorted video files and sorted subdirectories of
// dir. Hidden subdirectories are skipped.
func listDirectory(dir string) (files, dirs []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			if !strings.HasPrefix(name, ".") {
				dirs = append(dirs, filepath.Join(dir, name))
			}
		case episode.IsVideoExtension(name):
			files = append(files, filepath.Join(dir, name))
		}
	}
	slices.Sort(files)
	slices.Sort(dirs)
	return files, dirs, nil
}

// ScanTree scans root and every directory below it. A failing directory is
// logged and set aside until it is invalidated or a new reference intro
// arrives for it; the walk continues with the next directory.
func (s *Scanner) ScanTree(ctx context.Context, root string) ([]Report, error) {
	var reports []Report
	err := s.walk(ctx, filepath.Clean(root), func(dir string, _ []string) error {
		if s.Ignored(dir) {
			s.logger.Debug("skipping ignored directory", logging.String(logging.FieldDirectory, dir))
			return nil
		}
		report, err := s.scanGuarded(ctx, dir)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.ignoreFailed(s.logger, dir, err)
			return nil
		}
		if report.Mode != ModeSkipped {
			reports = append(reports, report)
		}
		return nil
	})
	return reports, err
}

func (s *Scanner) scanGuarded(ctx context.Context, dir string) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan %s: panic: %v", dir, r)
		}
	}()
	settings, err := s.cfg.SettingsFor(dir)
	if err != nil {
		return Report{Directory: dir, Mode: ModeSkipped}, err
	}
	return s.ScanDirectory(ctx, dir, settings)
}

// walk visits dir and its subdirectories depth first in name order. Errors
// listing a directory are logged and the subtree skipped.
func (s *Scanner) walk(ctx context.Context, dir string, visit func(dir string, files []string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	files, dirs, err := listDirectory(dir)
	if err != nil {
		logging.WarnWithContext(s.logger, "cannot list directory", "list_failed",
			logging.String(logging.FieldDirectory, dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "subtree skipped"),
		)
		return nil
	}
	if err := visit(dir, files); err != nil {
		return err
	}
	for _, sub := range dirs {
		if err := s.walk(ctx, sub, visit); err != nil {
			return err
		}
	}
	return nil
}

// CheckDirectory marks episodes below root that still need detection or
// silence detection as pending, according to the per-directory recheck
// settings. It returns the number of episodes marked.
func (s *Scanner) CheckDirectory(ctx context.Context, root string) (int, error) {
	marked := 0
	err := s.walk(ctx, filepath.Clean(root), func(dir string, files []string) error {
		if len(files) == 0 {
			return nil
		}
		settings, err := s.cfg.SettingsFor(dir)
		if err != nil {
			logging.WarnWithContext(s.logger, "invalid directory settings", "settings_invalid",
				logging.String(logging.FieldDirectory, dir), logging.Error(err))
			return nil
		}
		recheckSilence := s.cfg.Daemon.RecheckSilenceOnStartup && settings.DetectSilenceAfterCredits
		recheckUndetected := s.cfg.Daemon.RecheckUndetectedOnStartup && settings.MaximumMatches() > 0
		if !recheckSilence && !recheckUndetected {
			return nil
		}
		for _, file := range files {
			n, err := s.checkFile(ctx, file, settings, recheckUndetected, recheckSilence)
			if err != nil {
				logging.WarnWithContext(s.logger, "episode recheck failed", "recheck_failed",
					logging.String(logging.FieldDirectory, dir), logging.Error(err))
				continue
			}
			marked += n
		}
		return nil
	})
	return marked, err
}

func (s *Scanner) checkFile(ctx context.Context, file string, settings config.Detection, undetected, silence bool) (int, error) {
	ep, err := s.loadEpisode(ctx, file)
	if err != nil {
		return 0, err
	}
	if _, err := s.classify(ctx, ep, settings, true); err != nil {
		return 0, err
	}
	markDetection := undetected && ep.NeedsScanning
	markSilence := silence && ep.NeedsSilenceScanning
	if !markDetection && !markSilence {
		return 0, nil
	}
	ep.DetectionPending = ep.DetectionPending || markDetection
	ep.SilenceDetectionPending = ep.SilenceDetectionPending || markSilence
	s.logger.Info("episode needs scanning", logging.String(logging.FieldEpisodeID, ep.ID))
	if ep.InStore {
		return 1, s.store.SetPending(ctx, ep.ID, ep.DetectionPending, ep.SilenceDetectionPending)
	}
	return 1, s.store.Upsert(ctx, ep)
}

// InvalidateDirectory discards detected timings for every video below root
// and marks the episodes pending so the next pending scan redetects them.
// Reference timings are kept. It returns the number of episodes marked.
func (s *Scanner) InvalidateDirectory(ctx context.Context, root string) (int, error) {
	marked := 0
	err := s.walk(ctx, filepath.Clean(root), func(dir string, files []string) error {
		if len(files) == 0 {
			return nil
		}
		settings, err := s.cfg.SettingsFor(dir)
		if err != nil {
			return fmt.Errorf("settings for %s: %w", dir, err)
		}
		if settings.MaximumMatches() <= 0 {
			return nil
		}
		for _, file := range files {
			ep, err := s.loadEpisode(ctx, file)
			if err != nil {
				return err
			}
			if ep.InStore {
				if err := s.store.DeleteEpisodeTimings(ctx, ep.ID); err != nil {
					return err
				}
				if err := s.store.SetPending(ctx, ep.ID, true, ep.SilenceDetectionPending); err != nil {
					return err
				}
			} else {
				ep.DetectionPending = true
				if err := s.store.Upsert(ctx, ep); err != nil {
					return err
				}
			}
			marked++
		}
		s.setIgnored(dir, false)
		return nil
	})
	return marked, err
}

// ScanPending scans every directory holding pending episodes, skipping
// directories set aside after a failure.
func (s *Scanner) ScanPending(ctx context.Context) ([]Report, error) {
	dirs, err := s.store.PendingDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending directories: %w", err)
	}
	var reports []Report
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if s.Ignored(dir) {
			continue
		}
		report, err := s.scanGuarded(ctx, dir)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return reports, err
			}
			s.ignoreFailed(s.logger, dir, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Scanner) ignoreFailed(logger *slog.Logger, dir string, err error) {
	logging.ErrorWithContext(logger, "directory scan failed", "scan_failed",
		logging.String(logging.FieldDirectory, dir),
		logging.Error(err),
		logging.String(logging.FieldImpact, "directory ignored until invalidated"),
	)
	s.setIgnored(dir, true)
}
