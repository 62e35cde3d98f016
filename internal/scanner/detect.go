package scanner

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/fingerprint"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
)

// QueryOutcome is the result of one query pass: NoMatch or Matches.
type QueryOutcome interface {
	queryOutcome()
}

// NoMatch means the pass produced nothing usable.
type NoMatch struct {
	Reason string
}

// Matches holds the candidate segments per modality, in episode time.
type Matches struct {
	Audio *segments.Segments
	Video *segments.Segments
}

func (NoMatch) queryOutcome() {}
func (Matches) queryOutcome() {}

func modalities(settings config.Detection) fingerprint.Modalities {
	return fingerprint.Modalities{Audio: settings.UseAudio, Video: settings.UseVideo}
}

func trackFor(ep *episode.Episode, isCredits bool, win segments.Segment) fingerprint.Track {
	return fingerprint.Track{
		ID:          ep.ID,
		Dir:         ep.Dir,
		Name:        ep.Name,
		IsCredits:   isCredits,
		FileSize:    ep.SizeOnDisk,
		WindowStart: win.Start,
	}
}

// DetectSingleEpisode matches ep against the index and appends the best
// accepted segments per category to ep.Segments. It returns the number of
// accepted candidates. Failures, including panics, are logged and count as
// zero with ep.Segments left as it was.
func (s *Scanner) DetectSingleEpisode(ctx context.Context, ep *episode.Episode, settings config.Detection) int {
	return s.detectEpisode(ctx, s.logger, ep, settings)
}

func (s *Scanner) detectEpisode(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection) (detected int) {
	if !ep.NeedsScanning {
		return 0
	}
	logger = s.episodeLogger(logger, ep)
	before := ep.Segments.Clone()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "episode detection panicked", "detect_panic",
				logging.Panic(r),
				logging.String(logging.FieldErrorHint, "the episode is retried on the next scan"),
			)
			ep.Segments = before
			detected = 0
		}
	}()

	if ep.InStore && ep.Changed() {
		logger.Info("episode changed on disk; discarding previous segments",
			logging.Int64("size_in_db", ep.SizeInDB),
			logging.Int64("size_on_disk", ep.SizeOnDisk),
		)
		ep.Segments.Clear()
	}

	logger.Info("matching episode")
	var intro, credits Matches
	if settings.IntroMatchCount > 0 {
		intro = s.matchesFor(ctx, logger, ep, settings, false)
	}
	if settings.CreditsMatchCount > 0 {
		credits = s.matchesFor(ctx, logger, ep, settings, true)
	}

	introAccepted := accepted(intro, settings)
	creditsAccepted := accepted(credits, settings)
	if len(introAccepted) == 0 && len(creditsAccepted) == 0 {
		return 0
	}

	slices.SortStableFunc(introAccepted, func(a, b segments.Segment) int {
		return cmp.Compare(b.Duration(), a.Duration())
	})
	slices.SortStableFunc(creditsAccepted, func(a, b segments.Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})
	for _, seg := range introAccepted[:min(settings.IntroMatchCount, len(introAccepted))] {
		ep.Segments.AddSegment(seg, 0, false)
	}
	for _, seg := range creditsAccepted[:min(settings.CreditsMatchCount, len(creditsAccepted))] {
		ep.Segments.AddSegment(seg, 0, false)
	}
	ep.Segments.SortByStart()

	return len(introAccepted) + len(creditsAccepted)
}

func (s *Scanner) matchesFor(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection, isCredits bool) Matches {
	switch outcome := s.doSingleQuery(ctx, logger, ep, settings, isCredits).(type) {
	case Matches:
		return outcome
	case NoMatch:
		logger.Debug("no match",
			logging.String(logging.FieldCategory, categoryClip(isCredits)),
			logging.String("reason", outcome.Reason),
		)
	}
	return Matches{}
}

// accepted keeps the regions both modalities agree on when both are enabled,
// otherwise the single modality's candidates.
func accepted(m Matches, settings config.Detection) []segments.Segment {
	switch {
	case settings.UseAudio && settings.UseVideo:
		if m.Audio == nil || m.Video == nil {
			return nil
		}
		return m.Audio.FindAllOverlaps(m.Video).All()
	case settings.UseAudio:
		if m.Audio == nil {
			return nil
		}
		return m.Audio.All()
	case settings.UseVideo:
		if m.Video == nil {
			return nil
		}
		return m.Video.All()
	}
	return nil
}

// doSingleQuery cuts the category's search window and queries the engine
// with it, restricted to other episodes of the same directory and category.
func (s *Scanner) doSingleQuery(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection, isCredits bool) QueryOutcome {
	win := SearchWindow(ep, settings, isCredits, nil)
	kind := categoryClip(isCredits)
	clip, err := s.ensureClip(ctx, kind, ep, win, settings.UseVideo, settings.UseAudio || settings.DetectSilenceAfterCredits, settings.SampleRate)
	if err != nil {
		logging.WarnWithContext(logger, "clip cut failed", "clip_cut_failed",
			logging.String(logging.FieldCategory, kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg can read the episode"),
		)
		return NoMatch{Reason: "clip unavailable"}
	}

	self := trackFor(ep, isCredits, win)
	result, err := s.engine.Query(ctx, clip, fingerprint.QueryOptions{
		Modalities: modalities(settings),
		Yes:        map[string]string{fingerprint.MetaDir: ep.Dir},
		No: map[string]string{
			fingerprint.MetaName:      ep.Name,
			fingerprint.MetaIsCredits: strconv.FormatBool(!isCredits),
		},
		AudioThreshold: settings.AudioAccuracy,
		VideoThreshold: settings.VideoAccuracy,
		PermittedGap:   settings.PermittedGap,
		Self:           &self,
	})
	if err != nil {
		logging.WarnWithContext(logger, "fingerprint query failed", "fingerprint_query_failed",
			logging.String(logging.FieldCategory, kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check fpcalc and ffmpeg can read the clip"),
		)
		return NoMatch{Reason: "query failed"}
	}
	if result.Empty() {
		return NoMatch{Reason: "no entries"}
	}

	audio := slices.Clone(result.Audio)
	slices.SortStableFunc(audio, func(a, b fingerprint.Entry) int {
		return cmp.Compare(b.Coverage, a.Coverage)
	})
	video := slices.Clone(result.Video)
	slices.SortStableFunc(video, func(a, b fingerprint.Entry) int {
		return cmp.Compare(a.QueryMatchStartsAt, b.QueryMatchStartsAt)
	})

	out := Matches{
		Audio: entriesToSegments(audio, win, isCredits, settings),
		Video: entriesToSegments(video, win, isCredits, settings),
	}
	for name, segs := range map[string]*segments.Segments{"audio": out.Audio, "video": out.Video} {
		for _, seg := range segs.All() {
			logger.Debug("candidate segment",
				logging.String("modality", name),
				logging.String(logging.FieldCategory, kind),
				logging.String("segment", seg.String()),
			)
		}
	}
	return out
}

// entriesToSegments translates entries into episode time, drops those shorter
// than MinimumMatchSeconds and coalesces the rest.
func entriesToSegments(entries []fingerprint.Entry, win segments.Segment, isCredits bool, settings config.Detection) *segments.Segments {
	out := segments.New()
	for _, entry := range entries {
		start := entry.QueryMatchStartsAt + win.Start
		seg := segments.Segment{Start: start, End: start + entry.Coverage, IsCredits: isCredits}
		if seg.Duration() < settings.MinimumMatchSeconds {
			continue
		}
		out.AddSegment(seg, settings.PermittedGapWithMinimumEnclosure, false)
	}
	return out
}

// fingerprintFile indexes the category's search-window clip of ep unless
// hashes for the current file and window are already stored.
func (s *Scanner) fingerprintFile(ctx context.Context, logger *slog.Logger, ep *episode.Episode, settings config.Detection, isCredits bool) {
	if ep == nil || !ep.Exists() || ep.Duration <= 0 {
		return
	}
	logger = s.episodeLogger(logger, ep)
	kind := categoryClip(isCredits)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "fingerprinting panicked", "fingerprint_panic",
				logging.String(logging.FieldCategory, kind),
				logging.Panic(r),
			)
		}
	}()

	win := SearchWindow(ep, settings, isCredits, nil)
	track := trackFor(ep, isCredits, win)
	mods := modalities(settings)
	indexed, err := s.engine.Indexed(ctx, track, mods)
	if err != nil {
		logging.WarnWithContext(logger, "fingerprint lookup failed", "fingerprint_lookup_failed", logging.Error(err))
		return
	}
	if indexed {
		return
	}

	logger.Info("fingerprinting",
		logging.String(logging.FieldCategory, kind),
		logging.String("window", fmt.Sprintf("%.2f-%.2f", win.Start, win.End)),
	)
	clip, err := s.ensureClip(ctx, kind, ep, win, settings.UseVideo, settings.UseAudio || settings.DetectSilenceAfterCredits, settings.SampleRate)
	if err != nil {
		logging.WarnWithContext(logger, "clip cut failed", "clip_cut_failed",
			logging.String(logging.FieldCategory, kind),
			logging.Error(err),
		)
		return
	}
	if err := s.engine.Insert(ctx, track, clip, mods); err != nil {
		logging.WarnWithContext(logger, "fingerprint insert failed", "fingerprint_insert_failed",
			logging.String(logging.FieldCategory, kind),
			logging.Error(err),
		)
	}
}
