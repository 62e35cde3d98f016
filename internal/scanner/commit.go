package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
)

// HandleInsert finishes an episode after detection: it runs the silence pass
// when enabled, commits timings when anything was detected and clears the
// episode's pending flags. Episodes are recorded even when nothing was found
// so they are not retried on every run.
func (s *Scanner) HandleInsert(ctx context.Context, ep *episode.Episode, settings config.Detection, detected int) error {
	_, err := s.handleInsert(ctx, s.logger, ep, settings, detected)
	return err
}

// handleInsert reports ok=false when the commit was abandoned after a panic.
// The episode is left as it was and the caller keeps it pending. Only store
// failures while recording the episode are returned as errors.
func (s *Scanner) handleInsert(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection, detected int) (ok bool, err error) {
	logger = s.episodeLogger(logger, ep)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "commit panicked", "commit_panic",
				logging.Panic(r),
				logging.String(logging.FieldImpact, "episode stays pending and is retried on the next scan"),
			)
			ok, err = false, nil
		}
	}()

	silenceDone := false
	if settings.DetectSilenceAfterCredits && (ep.NeedsScanning || ep.NeedsSilenceScanning) {
		detected += s.detectSilence(ctx, logger, ep, settings)
		ep.NeedsSilenceScanning = false
		ep.SilenceDetectionDone = true
		ep.SilenceDetectionPending = false
		silenceDone = true
	}
	if !ep.NeedsScanning && !silenceDone {
		return true, nil
	}

	if detected > 0 {
		if err := s.insertTimings(ctx, logger, ep, settings); err != nil {
			logging.ErrorWithContext(logger, "commit timings failed", "commit_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "markers for this episode were not updated"),
				logging.String(logging.FieldErrorHint, "check the Plex database is writable"),
			)
		}
	} else {
		logger.Info("no segments detected", logging.Args(logging.DecisionAttrs("commit", "skipped", "nothing detected")...)...)
	}

	ep.NeedsScanning = false
	ep.DetectionPending = false
	if err := s.store.Upsert(ctx, ep); err != nil {
		return false, fmt.Errorf("record %s: %w", ep.ID, err)
	}
	return true, nil
}

// InsertTimings writes ep's accepted segments to the local store and, merged
// with PermittedGap and shifted by ShiftSegmentBySeconds, to the metadata store
// as 1-based markers in start order.
func (s *Scanner) InsertTimings(ctx context.Context, ep *episode.Episode, settings config.Detection) error {
	return s.insertTimings(ctx, s.logger, ep, settings)
}

func (s *Scanner) insertTimings(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection) error {
	for _, seg := range ep.Segments.All() {
		logger.Info("match",
			logging.Segment("segment", seg),
			logging.Seconds("duration", seg.Duration()),
		)
	}

	if ep.ReferenceIntro != nil {
		if err := s.store.DeleteReferenceTimings(ctx, ep.ID); err != nil {
			return err
		}
		if err := s.store.InsertTiming(ctx, ep.ID, *ep.ReferenceIntro, true); err != nil {
			return err
		}
	}
	if err := s.store.DeleteEpisodeTimings(ctx, ep.ID); err != nil {
		return err
	}
	if err := s.meta.DeleteExistingMarkers(ctx, ep.MetaID); err != nil {
		return err
	}

	final := segments.New()
	for _, seg := range ep.Segments.All() {
		if err := s.store.InsertTiming(ctx, ep.ID, seg, false); err != nil {
			return err
		}
		final.AddSegment(seg, settings.PermittedGap, true)
	}
	return s.writeMarkers(ctx, ep.MetaID, final, settings)
}

// writeMarkers sorts final by start, applies the configured shift and writes
// each entry to the metadata store.
func (s *Scanner) writeMarkers(ctx context.Context, metaID int64, final *segments.Segments, settings config.Detection) error {
	final.SortByStart()
	index := 0
	for _, seg := range final.All() {
		seg = seg.Shift(-settings.ShiftSegmentBySeconds)
		seg.Start = max(seg.Start, 0)
		if seg.End <= seg.Start {
			continue
		}
		if err := s.meta.InsertMarker(ctx, metaID, seg, index+1); err != nil {
			return err
		}
		index++
	}
	return nil
}
