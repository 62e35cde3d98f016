package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/plexdb"
	"creditscan/internal/segments"
)

const referenceIntroBatch = 500

// CheckForNewReferenceIntros processes intro markers the media server added
// since the last call. Episodes that still need detection are marked pending
// with the new reference intro recorded, since it moves their intro search
// window. For the others the stored timings are written back to the media
// server, replacing its markers. The watermark advances past every fully
// processed second of markers. It returns the number of markers processed.
func (s *Scanner) CheckForNewReferenceIntros(ctx context.Context) (int, error) {
	processed := 0
	for {
		since, err := s.store.LastReferenceIntroAdded(ctx)
		if err != nil {
			return processed, fmt.Errorf("read reference intro watermark: %w", err)
		}
		batch, err := s.meta.RecentReferenceIntros(ctx, since, referenceIntroBatch)
		if err != nil {
			return processed, fmt.Errorf("list reference intros: %w", err)
		}
		if len(batch) == 0 {
			return processed, nil
		}
		s.logger.Info("new reference intros", logging.Int("count", len(batch)))

		for i, item := range batch {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := s.handleReferenceIntro(ctx, item); err != nil {
				logging.WarnWithContext(s.logger, "reference intro not processed", "reference_intro_failed",
					logging.Int64("meta_id", item.MetaID),
					logging.String("path", item.FullPath),
					logging.Error(err),
					logging.String(logging.FieldImpact, "episode markers unchanged"),
				)
			}
			processed++
			// The watermark has one-second resolution; only move it once the
			// whole second is done so an interrupted batch replays it.
			if i+1 < len(batch) && batch[i+1].CreatedAt.Equal(item.CreatedAt) {
				continue
			}
			if err := s.store.SetLastReferenceIntroAdded(ctx, item.CreatedAt); err != nil {
				return processed, fmt.Errorf("advance reference intro watermark: %w", err)
			}
		}
	}
}

func (s *Scanner) inLibrary(path string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range s.cfg.Paths.LibraryRoots {
		root = filepath.Clean(root)
		if strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (s *Scanner) handleReferenceIntro(ctx context.Context, item plexdb.RecentIntro) error {
	if !s.inLibrary(item.FullPath) {
		return nil
	}
	ep, err := s.loadEpisode(ctx, item.FullPath)
	if err != nil {
		return err
	}
	logger := s.episodeLogger(s.logger, ep)
	ok, err := s.checkSingleEpisode(ctx, logger, ep)
	if err != nil || !ok {
		return err
	}
	settings, err := s.cfg.SettingsFor(ep.FullDirPath)
	if err != nil {
		return err
	}

	ref := item.Segment
	ep.ReferenceIntro = &ref
	if err := s.store.DeleteReferenceTimings(ctx, ep.ID); err != nil {
		return err
	}
	if err := s.store.InsertTiming(ctx, ep.ID, ref, true); err != nil {
		return err
	}

	verdict, err := s.classify(ctx, ep, settings, true)
	if err != nil {
		return err
	}
	if verdict.Work() {
		logger.Info("episode needs scanning after new reference intro")
		if err := s.markPending(ctx, ep); err != nil {
			return err
		}
		s.setIgnored(ep.FullDirPath, false)
		return nil
	}
	return s.resyncMarkers(ctx, ep, settings)
}

func (s *Scanner) markPending(ctx context.Context, ep *episode.Episode) error {
	ep.DetectionPending = true
	if ep.NeedsSilenceScanning {
		ep.SilenceDetectionPending = true
	}
	if ep.InStore {
		return s.store.SetPending(ctx, ep.ID, ep.DetectionPending, ep.SilenceDetectionPending)
	}
	return s.store.Upsert(ctx, ep)
}

// resyncMarkers rewrites the media server markers of ep from the stored
// timings. Nothing is touched when no timings are stored.
func (s *Scanner) resyncMarkers(ctx context.Context, ep *episode.Episode, settings config.Detection) error {
	stored, err := s.store.NonReferenceTimings(ctx, ep.ID)
	if err != nil {
		return err
	}
	if stored.Len() == 0 {
		return nil
	}
	if err := s.meta.DeleteExistingMarkers(ctx, ep.MetaID); err != nil {
		return err
	}
	final := segments.New()
	for _, seg := range stored.All() {
		final.AddSegment(seg, settings.PermittedGap, true)
	}
	return s.writeMarkers(ctx, ep.MetaID, final, settings)
}
