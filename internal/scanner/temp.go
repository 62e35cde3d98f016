package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"creditscan/internal/episode"
	"creditscan/internal/segments"
)

// Clip kinds, used as the clip file name prefix.
const (
	clipIntro   = "intro"
	clipCredits = "credits"
	clipSilence = "silence"
)

func categoryClip(isCredits bool) string {
	if isCredits {
		return clipCredits
	}
	return clipIntro
}

// clipPath is <temp_dir>/<kind>.<basename>.mkv.
func (s *Scanner) clipPath(kind string, ep *episode.Episode) string {
	return filepath.Join(s.cfg.Paths.TempDir, fmt.Sprintf("%s.%s.mkv", kind, ep.BaseName()))
}

// ensureClip cuts win out of ep unless a clip already exists at the expected
// path, and returns the clip path.
func (s *Scanner) ensureClip(ctx context.Context, kind string, ep *episode.Episode, win segments.Segment, wantVideo, wantAudio bool, sampleRate int) (string, error) {
	path := s.clipPath(kind, ep)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}
	if win.End <= win.Start {
		return "", fmt.Errorf("empty %s window %s", kind, win)
	}
	if err := os.MkdirAll(s.cfg.Paths.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	if err := s.cutter.Cut(ctx, ep.FullPath, win.Start, win.End, wantVideo, wantAudio, sampleRate, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// CleanTemp removes the clips cut by the scanner.
func (s *Scanner) CleanTemp() error {
	entries, err := os.ReadDir(s.cfg.Paths.TempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read temp dir: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isClipName(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Paths.TempDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isClipName(name string) bool {
	if filepath.Ext(name) != ".mkv" {
		return false
	}
	for _, kind := range []string{clipIntro, clipCredits, clipSilence} {
		if strings.HasPrefix(name, kind+".") {
			return true
		}
	}
	return false
}
