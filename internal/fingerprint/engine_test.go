package fingerprint_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"creditscan/internal/fingerprint"
	"creditscan/internal/store"
	"creditscan/internal/testsupport"
)

type fakeHasher struct {
	clips map[string][]uint64
	calls int
}

func (f *fakeHasher) AudioHashes(_ context.Context, clip string) ([]uint64, error) {
	f.calls++
	return f.clips[clip], nil
}

func (f *fakeHasher) VideoFrameHashes(_ context.Context, clip string, _ float64) ([]uint64, error) {
	f.calls++
	return f.clips[clip], nil
}

func newEngine(t *testing.T, hasher *fakeHasher) *fingerprint.Engine {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return fingerprint.New(st, hasher, hasher, fingerprint.Options{FrameRate: 2})
}

func seasonClips() map[string][]uint64 {
	r := rand.New(rand.NewPCG(11, 12))
	random := func(n int) []uint64 {
		out := make([]uint64, n)
		for i := range out {
			out[i] = uint64(r.Uint32())
		}
		return out
	}
	theme := random(200)
	join := func(parts ...[]uint64) []uint64 {
		var out []uint64
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	return map[string][]uint64{
		"intro.e1.mkv":    join(random(80), theme, random(100)),
		"intro.e2.mkv":    join(random(30), theme, random(150)),
		"credits.e2.mkv":  join(theme, random(50)),
		"intro.other.mkv": join(theme),
	}
}

func track(name string, isCredits bool, dir string) fingerprint.Track {
	return fingerprint.Track{ID: dir + "/" + name, Dir: dir, Name: name, IsCredits: isCredits, FileSize: 100}
}

func TestQueryAppliesFilters(t *testing.T) {
	ctx := context.Background()
	hasher := &fakeHasher{clips: seasonClips()}
	engine := newEngine(t, hasher)
	audio := fingerprint.Modalities{Audio: true}

	inserts := []struct {
		track fingerprint.Track
		clip  string
	}{
		{track("e1.mkv", false, "Show/S1"), "intro.e1.mkv"},
		{track("e2.mkv", false, "Show/S1"), "intro.e2.mkv"},
		{track("e2.mkv", true, "Show/S1"), "credits.e2.mkv"},
		{track("x.mkv", false, "Other/S1"), "intro.other.mkv"},
	}
	for _, in := range inserts {
		if err := engine.Insert(ctx, in.track, in.clip, audio); err != nil {
			t.Fatalf("Insert %s: %v", in.clip, err)
		}
	}

	self := track("e1.mkv", false, "Show/S1")
	result, err := engine.Query(ctx, "intro.e1.mkv", fingerprint.QueryOptions{
		Modalities:     audio,
		Yes:            map[string]string{fingerprint.MetaDir: "Show/S1"},
		No:             map[string]string{fingerprint.MetaName: "e1.mkv", fingerprint.MetaIsCredits: "true"},
		AudioThreshold: 4,
		PermittedGap:   2,
		Self:           &self,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Video) != 0 {
		t.Fatalf("video was not requested: %+v", result.Video)
	}
	if len(result.Audio) != 1 {
		t.Fatalf("expected only the other intro to match, got %+v", result.Audio)
	}
	entry := result.Audio[0]
	if entry.TrackID != "Show/S1/e2.mkv" {
		t.Fatalf("unexpected track %s", entry.TrackID)
	}
	frame := fingerprint.AudioFrameSeconds
	if diff := entry.QueryMatchStartsAt - 80*frame; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected query start %v", entry.QueryMatchStartsAt)
	}
	if diff := entry.Coverage - 200*frame; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected coverage %v", entry.Coverage)
	}
	if hasher.calls != len(inserts) {
		t.Fatalf("query should reuse stored hashes, hasher called %d times", hasher.calls)
	}
}

func TestQueryRequiresDirFilter(t *testing.T) {
	engine := newEngine(t, &fakeHasher{})
	_, err := engine.Query(context.Background(), "clip.mkv", fingerprint.QueryOptions{Modalities: fingerprint.Modalities{Audio: true}})
	if err == nil {
		t.Fatal("expected error without dir filter")
	}
}

func TestInsertRejectsEmptyHashes(t *testing.T) {
	engine := newEngine(t, &fakeHasher{clips: map[string][]uint64{}})
	err := engine.Insert(context.Background(), track("e1.mkv", false, "d"), "missing.mkv", fingerprint.Modalities{Video: true})
	if !errors.Is(err, fingerprint.ErrNoHashes) {
		t.Fatalf("expected ErrNoHashes, got %v", err)
	}
}

func TestIndexedTracksFileSize(t *testing.T) {
	ctx := context.Background()
	hasher := &fakeHasher{clips: seasonClips()}
	engine := newEngine(t, hasher)
	both := fingerprint.Modalities{Audio: true, Video: true}
	tr := track("e1.mkv", false, "Show/S1")

	ok, err := engine.Indexed(ctx, tr, both)
	if err != nil || ok {
		t.Fatalf("expected not indexed, got %v %v", ok, err)
	}
	if err := engine.Insert(ctx, tr, "intro.e1.mkv", both); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, _ := engine.Indexed(ctx, tr, both); !ok {
		t.Fatal("expected indexed after insert")
	}
	changed := tr
	changed.FileSize = 200
	if ok, _ := engine.Indexed(ctx, changed, both); ok {
		t.Fatal("a size change must invalidate stored hashes")
	}
}

var _ fingerprint.Index = (*store.Store)(nil)
