package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"creditscan/internal/config"
	"creditscan/internal/fingerprint"
	"creditscan/internal/logging"
	"creditscan/internal/plexdb"
	"creditscan/internal/scanner"
	"creditscan/internal/segments"
	"creditscan/internal/store"
	"creditscan/internal/testsupport"
)

const testDuration = 1320.0

type cutCall struct {
	src        string
	start, end float64
	wantVideo  bool
	wantAudio  bool
	dst        string
}

type fakeCutter struct {
	cuts    []cutCall
	silence []segments.Segment
}

func (c *fakeCutter) Cut(_ context.Context, src string, start, end float64, wantVideo, wantAudio bool, _ int, dst string) error {
	c.cuts = append(c.cuts, cutCall{src: src, start: start, end: end, wantVideo: wantVideo, wantAudio: wantAudio, dst: dst})
	return os.WriteFile(dst, []byte("clip"), 0o644)
}

func (c *fakeCutter) DetectSilence(context.Context, string, float64, float64) ([]segments.Segment, error) {
	return c.silence, nil
}

func (c *fakeCutter) clipNames() []string {
	names := make([]string, 0, len(c.cuts))
	for _, call := range c.cuts {
		names = append(names, filepath.Base(call.dst))
	}
	return names
}

type fakeEngine struct {
	intro    fingerprint.Result
	credits  fingerprint.Result
	inserted []fingerprint.Track
	queries  int
	panics   bool
}

func (e *fakeEngine) Indexed(context.Context, fingerprint.Track, fingerprint.Modalities) (bool, error) {
	return false, nil
}

func (e *fakeEngine) Insert(_ context.Context, track fingerprint.Track, _ string, _ fingerprint.Modalities) error {
	e.inserted = append(e.inserted, track)
	return nil
}

func (e *fakeEngine) Query(_ context.Context, _ string, opts fingerprint.QueryOptions) (fingerprint.Result, error) {
	e.queries++
	if e.panics {
		panic("engine exploded")
	}
	// Intro queries exclude credits tracks.
	if opts.No[fingerprint.MetaIsCredits] == "true" {
		return e.intro, nil
	}
	return e.credits, nil
}

type harness struct {
	cfg     *config.Config
	scanner *scanner.Scanner
	store   *store.Store
	meta    *plexdb.DB
	plex    *testsupport.PlexFixture
	cutter  *fakeCutter
	engine  *fakeEngine
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	plex := testsupport.NewPlexDB(t, cfg.Paths.PlexDB)
	meta, err := plexdb.Open(cfg.Paths.PlexDB)
	if err != nil {
		t.Fatalf("plexdb.Open: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	h := &harness{
		cfg:    cfg,
		store:  testsupport.MustOpenStore(t, cfg),
		meta:   meta,
		plex:   plex,
		cutter: &fakeCutter{},
		engine: &fakeEngine{},
	}
	h.useMeta(t, meta)
	return h
}

// useMeta rebuilds the scanner over meta.
func (h *harness) useMeta(t *testing.T, meta scanner.MetadataStore) {
	t.Helper()
	sc, err := scanner.New(h.cfg, scanner.Dependencies{
		Store:  h.store,
		Meta:   meta,
		Cutter: h.cutter,
		Engine: h.engine,
		Probe: func(context.Context, string) (float64, error) {
			return testDuration, nil
		},
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("scanner.New: %v", err)
	}
	h.scanner = sc
}

// markerPanic panics when markers are written for metaID.
type markerPanic struct {
	*plexdb.DB
	metaID int64
}

func (m markerPanic) InsertMarker(ctx context.Context, metaID int64, seg segments.Segment, index int) error {
	if metaID == m.metaID {
		panic("marker write failed")
	}
	return m.DB.InsertMarker(ctx, metaID, seg, index)
}

// cancelOnLookup cancels the scan context on the first metadata lookup.
type cancelOnLookup struct {
	*plexdb.DB
	cancel context.CancelFunc
}

func (c cancelOnLookup) MetadataID(ctx context.Context, fullPath string) (int64, error) {
	c.cancel()
	return c.DB.MetadataID(ctx, fullPath)
}

// season writes count episodes under <root>/Show/Season 1 and registers them
// with the Plex fixture as metadata ids 1..count.
func (h *harness) season(t *testing.T, count int) (string, []string) {
	t.Helper()
	dir := filepath.Join(testsupport.LibraryRoot(h.cfg), "Show", "Season 1")
	paths := testsupport.WriteEpisodes(t, dir, "Show", count, 128)
	for i, path := range paths {
		h.plex.AddMedia(path, int64(i+1))
	}
	return dir, paths
}

func entry(start, coverage float64) fingerprint.Entry {
	return fingerprint.Entry{TrackID: "other", QueryMatchStartsAt: start, Coverage: coverage, Confidence: 1}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}

func hasPrefix(names []string, prefix string) bool {
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
