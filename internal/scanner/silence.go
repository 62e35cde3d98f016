package scanner

import (
	"context"
	"log/slog"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
)

// DetectSilence replaces the silence segments of ep with the silences found
// after its first credits segment, or inside the credits window when no
// credits are known. It returns the number of silences found.
func (s *Scanner) DetectSilence(ctx context.Context, ep *episode.Episode, settings config.Detection) int {
	return s.detectSilence(ctx, s.logger, ep, settings)
}

func (s *Scanner) detectSilence(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection) int {
	if !settings.DetectSilenceAfterCredits {
		return 0
	}
	logger = s.episodeLogger(logger, ep)
	ep.Segments.RemoveWhere(segments.IsSilence)

	kind := clipCredits
	var override *segments.Segment
	if credits, ok := ep.Segments.First(func(seg segments.Segment) bool { return seg.IsCredits }); ok {
		override = &segments.Segment{Start: credits.End, End: ep.Duration, IsCredits: true}
		kind = clipSilence
	}
	win := SearchWindow(ep, settings, true, override)

	clip, err := s.ensureClip(ctx, kind, ep, win, false, true, settings.SampleRate)
	if err != nil {
		logging.WarnWithContext(logger, "silence clip cut failed", "silence_clip_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg can read the episode audio"),
		)
		return 0
	}

	found, err := s.cutter.DetectSilence(ctx, clip, settings.MinimumMatchSeconds, settings.SilenceDecibels)
	if err != nil {
		logging.WarnWithContext(logger, "silence detection failed", "silence_detect_failed", logging.Error(err))
		return 0
	}
	for _, seg := range found {
		seg = seg.Shift(win.Start)
		seg.IsCredits = true
		seg.IsSilence = true
		ep.Segments.AddSegment(seg, 0, false)
		logger.Info("silence found", logging.Segment("segment", seg))
	}
	return len(found)
}
