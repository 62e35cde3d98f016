package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
)

// Scan modes reported by ScanDirectory.
const (
	ModeSkipped = "skipped"
	ModeSilence = "silence"
	ModeQuick   = "quick"
	ModeFull    = "full"
)

// minimumCompleteEpisodes is the number of episodes that must already have a
// complete category before quick detection trusts their segments.
const minimumCompleteEpisodes = 8

// Report summarizes one directory scan.
type Report struct {
	ScanID    string
	Directory string
	Episodes  int
	Committed int
	// Failed counts episodes whose commit was abandoned; they stay pending.
	Failed    int
	Mode      string
	Elapsed   time.Duration
}

// ScanPlan is the scheduling decision for a directory.
type ScanPlan struct {
	QuickDetect bool
	// Reasons lists why quick detection was vetoed.
	Reasons            []string
	RandomEpisodes     []*episode.Episode
	RandomEpisodesFull []*episode.Episode
	// BestIntros and BestCredits hold, per required slot, the episode with the
	// longest segment in that slot; nil when no episode filled it.
	BestIntros      []*episode.Episode
	BestCredits     []*episode.Episode
	IntroComplete   int
	CreditsComplete int
}

// planScan walks the name-sorted episodes once, spreading the quick and full
// fingerprint samples evenly across the season and collecting the best
// existing segment per slot. quick is the initial quick-detect decision.
func planScan(episodes []*episode.Episode, settings config.Detection, quick bool) ScanPlan {
	plan := ScanPlan{
		QuickDetect: quick,
		BestIntros:  make([]*episode.Episode, max(settings.IntroMatchCount, 0)),
		BestCredits: make([]*episode.Episode, max(settings.CreditsMatchCount, 0)),
	}
	if !quick {
		plan.Reasons = append(plan.Reasons, "too many episodes need scanning")
	}
	bestIntroLen := make([]float64, len(plan.BestIntros))
	bestCreditsLen := make([]float64, len(plan.BestCredits))

	total := float64(len(episodes))
	quickSamples := float64(settings.QuickDetectFingerprintSamples)
	allSamples := float64(settings.QuickDetectFingerprintSamples + settings.FullDetectFingerprintMaxSamples)

	for i, ep := range episodes {
		position := float64(i)
		switch {
		case float64(len(plan.RandomEpisodes)) < position/(total/quickSamples):
			plan.RandomEpisodes = append(plan.RandomEpisodes, ep)
		case float64(len(plan.RandomEpisodes)+len(plan.RandomEpisodesFull)) < position/(total/allSamples):
			plan.RandomEpisodesFull = append(plan.RandomEpisodesFull, ep)
		}

		intros := ep.Segments.Filter(segments.IsIntro)
		if len(intros) == settings.IntroMatchCount {
			plan.IntroComplete++
			fillBest(intros, ep, plan.BestIntros, bestIntroLen)
		}
		credits := ep.Segments.Filter(segments.IsCreditsMatch)
		if len(credits) == settings.CreditsMatchCount {
			plan.CreditsComplete++
			fillBest(credits, ep, plan.BestCredits, bestCreditsLen)
		}
	}

	veto := func(name string, count, complete int, best []*episode.Episode) {
		if count <= 0 {
			return
		}
		if complete < minimumCompleteEpisodes {
			plan.QuickDetect = false
			plan.Reasons = append(plan.Reasons, fmt.Sprintf("only %d episodes have complete %s", complete, name))
			return
		}
		for slot, ep := range best {
			if ep == nil {
				plan.QuickDetect = false
				plan.Reasons = append(plan.Reasons, fmt.Sprintf("no exemplar for %s slot %d", name, slot+1))
				return
			}
		}
	}
	veto("intros", settings.IntroMatchCount, plan.IntroComplete, plan.BestIntros)
	veto("credits", settings.CreditsMatchCount, plan.CreditsComplete, plan.BestCredits)
	return plan
}

func fillBest(found []segments.Segment, ep *episode.Episode, best []*episode.Episode, bestLen []float64) {
	for slot, seg := range found {
		if slot >= len(best) {
			return
		}
		if seg.Duration() > bestLen[slot] {
			bestLen[slot] = seg.Duration()
			best[slot] = ep
		}
	}
}

// ScanDirectory detects intros and credits for the episodes of one directory
// and commits what it finds. Temp clips are removed and the directory's
// pending flags cleared on every exit path.
func (s *Scanner) ScanDirectory(ctx context.Context, dir string, settings config.Detection) (report Report, err error) {
	dir = filepath.Clean(dir)
	report = Report{ScanID: uuid.NewString(), Directory: dir, Mode: ModeSkipped}
	if settings.MaximumMatches() <= 0 {
		return report, nil
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return report, nil
	}

	root := s.cfg.LibraryRootFor(dir)
	relDir := episode.RelativeDir(root, dir)
	logger := s.logger.With(
		logging.String(logging.FieldScanID, report.ScanID),
		logging.String(logging.FieldDirectory, relDir),
	)
	started := time.Now()
	var abandoned []pendingMark
	defer func() {
		if cleanErr := s.CleanTemp(); cleanErr != nil {
			logging.WarnWithContext(logger, "temp cleanup failed", "temp_cleanup_failed", logging.Error(cleanErr))
		}
		if clearErr := s.store.ClearPendingForDirectory(ctx, relDir); clearErr != nil {
			err = errors.Join(err, fmt.Errorf("clear pending for %s: %w", relDir, clearErr))
		}
		for _, mark := range abandoned {
			if markErr := mark.restore(ctx, s.store); markErr != nil {
				err = errors.Join(err, markErr)
			}
		}
		report.Elapsed = time.Since(started)
		logger.Info("directory scan finished",
			logging.String("mode", report.Mode),
			logging.Int("episodes", report.Episodes),
			logging.Int("committed", report.Committed),
			logging.Int("failed", report.Failed),
			logging.Duration("elapsed", report.Elapsed),
		)
	}()

	// commit finishes ep and keeps it pending when the commit is abandoned.
	commit := func(ep *episode.Episode, detected int) error {
		mark := markOf(ep)
		ok, err := s.handleInsert(ctx, logger, ep, settings, detected)
		switch {
		case err != nil:
			return err
		case !ok:
			report.Failed++
			abandoned = append(abandoned, mark)
		case mark.detection || mark.silence:
			report.Committed++
		}
		return nil
	}

	all, err := s.directoryEpisodes(ctx, root, dir, relDir)
	if err != nil {
		return report, err
	}

	episodes := make([]*episode.Episode, 0, len(all))
	for _, ep := range all {
		ok, checkErr := s.checkSingleEpisode(ctx, logger, ep)
		if checkErr != nil {
			logging.WarnWithContext(logger, "episode check failed", "episode_check_failed",
				logging.String(logging.FieldEpisodeID, ep.ID),
				logging.Error(checkErr),
			)
			continue
		}
		if !ok {
			continue
		}
		if _, classifyErr := s.classify(ctx, ep, settings, false); classifyErr != nil {
			return report, classifyErr
		}
		episodes = append(episodes, ep)
	}
	report.Episodes = len(episodes)

	needScan, needSilence := 0, 0
	for _, ep := range episodes {
		if ep.NeedsScanning {
			needScan++
		}
		if ep.NeedsSilenceScanning {
			needSilence++
		}
	}
	total := len(episodes)
	if needSilence <= 0 && (needScan <= 0 || total < 2) {
		logger.Debug("nothing to scan", logging.Args(logging.DecisionAttrs("scan", "skipped", "no episode needs work")...)...)
		return report, nil
	}
	tryQuick := needScan <= total/4

	sortByName(episodes)

	if needSilence > 0 && (needScan <= 0 || total < 2) {
		report.Mode = ModeSilence
		for _, ep := range episodes {
			if !ep.NeedsSilenceScanning {
				continue
			}
			if err := commit(ep, 0); err != nil {
				return report, err
			}
		}
		return report, nil
	}

	plan := planScan(episodes, settings, tryQuick)
	logger.Info("scan plan",
		logging.Bool("quick_detect", plan.QuickDetect),
		logging.Int("need_scanning", needScan),
		logging.Int("quick_samples", len(plan.RandomEpisodes)),
		logging.Int("full_samples", len(plan.RandomEpisodesFull)),
		logging.Int("intro_complete", plan.IntroComplete),
		logging.Int("credits_complete", plan.CreditsComplete),
		logging.Any("reasons", plan.Reasons),
	)

	remaining := 0
	if plan.QuickDetect {
		report.Mode = ModeQuick
		for _, ep := range plan.BestIntros {
			s.fingerprintFile(ctx, logger, ep, settings, false)
		}
		for _, ep := range plan.BestCredits {
			s.fingerprintFile(ctx, logger, ep, settings, true)
		}
		s.fingerprintAll(ctx, logger, plan.RandomEpisodes, settings)

		for _, ep := range episodes {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			detected := s.detectEpisode(ctx, logger, ep, settings)
			if ep.Segments.Len() >= settings.MaximumMatches() {
				if err := commit(ep, detected); err != nil {
					return report, err
				}
				continue
			}
			if ep.NeedsScanning {
				remaining++
				logger.Info("quick detection incomplete; falling back to full scan",
					logging.String(logging.FieldEpisodeID, ep.ID))
				break
			}
		}
	}

	if !plan.QuickDetect || remaining > 0 {
		report.Mode = ModeFull
		s.fingerprintAll(ctx, logger, plan.RandomEpisodesFull, settings)
		for _, ep := range episodes {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			detected := s.detectEpisode(ctx, logger, ep, settings)
			if err := commit(ep, detected); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// pendingMark is the state an episode is restored to after its commit was
// abandoned: pending for whatever work it needed before the commit.
type pendingMark struct {
	ep          *episode.Episode
	detection   bool
	silence     bool
	silenceDone bool
}

func markOf(ep *episode.Episode) pendingMark {
	return pendingMark{
		ep:          ep,
		detection:   ep.NeedsScanning,
		silence:     ep.NeedsSilenceScanning,
		silenceDone: ep.SilenceDetectionDone,
	}
}

// restore records the episode as pending. Timings a partial commit left
// behind are dropped so the classifier sees the episode as incomplete, and
// new episodes are inserted so the next pending scan finds them.
func (m pendingMark) restore(ctx context.Context, st Store) error {
	if m.detection {
		if err := st.DeleteEpisodeTimings(ctx, m.ep.ID); err != nil {
			return fmt.Errorf("keep %s pending: %w", m.ep.ID, err)
		}
	}
	m.ep.DetectionPending = m.detection
	m.ep.SilenceDetectionPending = m.silence
	m.ep.SilenceDetectionDone = m.silenceDone
	if err := st.Upsert(ctx, m.ep); err != nil {
		return fmt.Errorf("keep %s pending: %w", m.ep.ID, err)
	}
	return nil
}

// fingerprintAll indexes every required category of each episode.
func (s *Scanner) fingerprintAll(ctx context.Context, logger *slog.Logger, episodes []*episode.Episode, settings config.Detection) {
	for _, ep := range episodes {
		if settings.IntroMatchCount > 0 {
			s.fingerprintFile(ctx, logger, ep, settings, false)
		}
		if settings.CreditsMatchCount > 0 {
			s.fingerprintFile(ctx, logger, ep, settings, true)
		}
	}
}

// directoryEpisodes merges the stored episodes of relDir with the video files
// found in dir.
func (s *Scanner) directoryEpisodes(ctx context.Context, root, dir, relDir string) ([]*episode.Episode, error) {
	stored, err := s.store.EpisodesForDirectory(ctx, root, relDir)
	if err != nil {
		return nil, fmt.Errorf("load stored episodes: %w", err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, ep := range stored {
		known[ep.FullPath] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	all := stored
	for _, entry := range entries {
		if entry.IsDir() || !episode.IsVideoExtension(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := known[path]; ok {
			continue
		}
		all = append(all, episode.New(path, root))
	}
	return all, nil
}

// checkSingleEpisode validates ep for scanning: the file must exist, be a
// video and be known to the metadata store. Episodes the metadata store does
// not know are purged from the local store; newly seen ones are recorded as
// pending. It also resolves the reference intro and the duration.
func (s *Scanner) checkSingleEpisode(ctx context.Context, logger *slog.Logger, ep *episode.Episode) (bool, error) {
	ep.Passed = false
	if !ep.Exists() || !episode.IsVideoExtension(ep.FullPath) {
		return false, nil
	}

	metaID, err := s.meta.MetadataID(ctx, ep.FullPath)
	if err != nil {
		return false, fmt.Errorf("metadata lookup: %w", err)
	}
	ep.MetaID = metaID
	if metaID < 0 {
		if ep.InStore {
			logger.Info("episode no longer in metadata store; removing",
				logging.String(logging.FieldEpisodeID, ep.ID))
			if err := s.store.Delete(ctx, ep.ID); err != nil {
				return false, err
			}
			ep.InStore = false
		}
		ep.DetectionPending = false
		ep.NeedsScanning = false
		return false, nil
	}

	if err := s.resolveReferenceIntro(ctx, ep); err != nil {
		return false, err
	}

	if ep.Duration <= 0 || ep.Changed() {
		duration, err := s.probe(ctx, ep.FullPath)
		if err != nil {
			logging.WarnWithContext(logger, "duration probe failed", "probe_failed",
				logging.String(logging.FieldEpisodeID, ep.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ffprobe can read the file"),
			)
			return false, nil
		}
		ep.Duration = duration
	}

	if !ep.InStore {
		ep.DetectionPending = true
		if err := s.store.Upsert(ctx, ep); err != nil {
			return false, err
		}
	}

	ep.Passed = true
	return true, nil
}

// resolveReferenceIntro prefers the metadata store's own intro marker and
// falls back to the one recorded locally.
func (s *Scanner) resolveReferenceIntro(ctx context.Context, ep *episode.Episode) error {
	ref, err := s.meta.ReferenceIntro(ctx, ep.MetaID)
	if err != nil {
		return fmt.Errorf("reference intro lookup: %w", err)
	}
	if ref == nil && ep.InStore {
		if ref, err = s.store.ReferenceTiming(ctx, ep.ID); err != nil {
			return err
		}
	}
	ep.ReferenceIntro = ref
	return nil
}

var nameCollator = collate.New(language.Und, collate.Numeric)

func sortByName(episodes []*episode.Episode) {
	slices.SortStableFunc(episodes, func(a, b *episode.Episode) int {
		return nameCollator.CompareString(a.Name, b.Name)
	})
}
