package scanner_test

import (
	"context"
	"testing"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/fingerprint"
	"creditscan/internal/segments"
	"creditscan/internal/testsupport"
)

func detectionEpisode(t *testing.T, h *harness) *episode.Episode {
	t.Helper()
	_, paths := h.season(t, 1)
	ep := episode.New(paths[0], testsupport.LibraryRoot(h.cfg))
	ep.Duration = testDuration
	ep.MetaID = 1
	ep.NeedsScanning = true
	return ep
}

func TestDetectSingleEpisodeTranslatesToEpisodeTime(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.CreditsMatchCount = 0
	}))
	ep := detectionEpisode(t, h)
	h.engine.intro = fingerprint.Result{Audio: []fingerprint.Entry{entry(12, 20), entry(400, 5)}}

	got := h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection)
	if got != 1 {
		t.Fatalf("expected one accepted candidate, got %d", got)
	}
	all := ep.Segments.All()
	if len(all) != 1 || all[0] != (segments.Segment{Start: 12, End: 32}) {
		t.Fatalf("unexpected segments: %v", all)
	}
	if len(h.cutter.cuts) != 1 || h.cutter.cuts[0].start != 0 || h.cutter.cuts[0].end != 660 {
		t.Fatalf("unexpected cuts: %+v", h.cutter.cuts)
	}
	if !hasPrefix(h.cutter.clipNames(), "intro.Show - S01E01") {
		t.Fatalf("unexpected clip names: %v", h.cutter.clipNames())
	}
}

func TestDetectSingleEpisodeIntersectsModalities(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.UseVideo = true
		d.CreditsMatchCount = 0
	}))
	ep := detectionEpisode(t, h)
	h.engine.intro = fingerprint.Result{
		Audio: []fingerprint.Entry{entry(12, 40)},
		Video: []fingerprint.Entry{entry(20, 40)},
	}

	if got := h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection); got != 1 {
		t.Fatalf("expected one accepted candidate, got %d", got)
	}
	all := ep.Segments.All()
	if len(all) != 1 || all[0].Start != 20 || all[0].End != 52 {
		t.Fatalf("expected overlap [20, 52), got %v", all)
	}
	if !h.cutter.cuts[0].wantVideo {
		t.Fatal("expected video in the clip when video matching is enabled")
	}
}

func TestDetectSingleEpisodePrefersEarliestCredits(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.IntroMatchCount = 0
	}))
	ep := detectionEpisode(t, h)
	// Credits window is [924, 1320).
	h.engine.credits = fingerprint.Result{Audio: []fingerprint.Entry{entry(100, 30), entry(10, 60)}}

	if got := h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection); got != 2 {
		t.Fatalf("expected two accepted candidates, got %d", got)
	}
	all := ep.Segments.All()
	if len(all) != 1 || !all[0].IsCredits || !near(all[0].Start, 934) || !near(all[0].End, 994) {
		t.Fatalf("expected earliest credits segment, got %v", all)
	}
}

func TestDetectSingleEpisodePrefersLongestIntro(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.CreditsMatchCount = 0
	}))
	ep := detectionEpisode(t, h)
	h.engine.intro = fingerprint.Result{Audio: []fingerprint.Entry{entry(10, 25), entry(200, 80)}}

	h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection)
	all := ep.Segments.All()
	if len(all) != 1 || all[0].Start != 200 || all[0].End != 280 {
		t.Fatalf("expected the longest intro, got %v", all)
	}
}

func TestDetectSingleEpisodeSkipsWhenNotNeeded(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ep.NeedsScanning = false

	if got := h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection); got != 0 {
		t.Fatalf("expected no work, got %d", got)
	}
	if h.engine.queries != 0 || len(h.cutter.cuts) != 0 {
		t.Fatal("expected no queries or cuts")
	}
}

func TestDetectSingleEpisodeRecoversFromPanics(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ep.Segments.Append(segments.Segment{Start: 1, End: 2})
	h.engine.panics = true

	if got := h.scanner.DetectSingleEpisode(context.Background(), ep, h.cfg.Detection); got != 0 {
		t.Fatalf("expected zero after panic, got %d", got)
	}
	if all := ep.Segments.All(); len(all) != 1 || all[0].Start != 1 {
		t.Fatalf("expected segments restored, got %v", all)
	}
}

func TestDetectSilenceAfterCredits(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)
	ep.Segments.Append(segments.Segment{Start: 1200, End: 1290, IsCredits: true})
	ep.Segments.Append(segments.Segment{Start: 5, End: 6, IsCredits: true, IsSilence: true})
	h.cutter.silence = []segments.Segment{{Start: 35, End: 45, IsSilence: true}}

	if got := h.scanner.DetectSilence(context.Background(), ep, h.cfg.Detection); got != 1 {
		t.Fatalf("expected one silence, got %d", got)
	}
	cut := h.cutter.cuts[0]
	if cut.start != 1260 || cut.end != 1320 || cut.wantVideo || !cut.wantAudio {
		t.Fatalf("unexpected silence cut: %+v", cut)
	}
	if !hasPrefix(h.cutter.clipNames(), "silence.") {
		t.Fatalf("expected silence clip, got %v", h.cutter.clipNames())
	}
	want := []segments.Segment{
		{Start: 1200, End: 1290, IsCredits: true},
		{Start: 1295, End: 1305, IsCredits: true, IsSilence: true},
	}
	all := ep.Segments.All()
	if len(all) != len(want) {
		t.Fatalf("unexpected segments: %v", all)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("segment %d = %v, want %v", i, all[i], want[i])
		}
	}
}

func TestDetectSilenceWithoutCreditsUsesCreditsWindow(t *testing.T) {
	h := newHarness(t)
	ep := detectionEpisode(t, h)

	h.scanner.DetectSilence(context.Background(), ep, h.cfg.Detection)
	if len(h.cutter.cuts) != 1 || !near(h.cutter.cuts[0].start, 924) {
		t.Fatalf("expected credits window cut, got %+v", h.cutter.cuts)
	}
	if !hasPrefix(h.cutter.clipNames(), "credits.") {
		t.Fatalf("expected credits clip, got %v", h.cutter.clipNames())
	}
}

func TestDetectSilenceDisabled(t *testing.T) {
	h := newHarness(t, testsupport.WithDetection(func(d *config.Detection) {
		d.DetectSilenceAfterCredits = false
	}))
	ep := detectionEpisode(t, h)
	if got := h.scanner.DetectSilence(context.Background(), ep, h.cfg.Detection); got != 0 || len(h.cutter.cuts) != 0 {
		t.Fatalf("expected no silence work, got %d with %d cuts", got, len(h.cutter.cuts))
	}
}
