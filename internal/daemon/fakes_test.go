package daemon

import (
	"context"
	"sync"
	"sync/atomic"

	"creditscan/internal/episode"
	"creditscan/internal/scanner"
	"creditscan/internal/store"
)

type fakeScanner struct {
	mu          sync.Mutex
	checked     []string
	invalidated []string
	scans       atomic.Int32
	polls       atomic.Int32
	scanned     chan struct{}
	scanErr     error
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{scanned: make(chan struct{}, 16)}
}

func (f *fakeScanner) ScanPending(context.Context) ([]scanner.Report, error) {
	f.scans.Add(1)
	select {
	case f.scanned <- struct{}{}:
	default:
	}
	return []scanner.Report{{ScanID: "scan-1", Directory: "/library/Show", Mode: scanner.ModeFull, Committed: 2}}, f.scanErr
}

func (f *fakeScanner) CheckForNewReferenceIntros(context.Context) (int, error) {
	f.polls.Add(1)
	return 0, nil
}

func (f *fakeScanner) CheckDirectory(_ context.Context, root string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, root)
	return 1, nil
}

func (f *fakeScanner) InvalidateDirectory(_ context.Context, root string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, root)
	return 3, nil
}

func (f *fakeScanner) calls() (checked, invalidated []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checked...), append([]string(nil), f.invalidated...)
}

type fakeStore struct {
	records  []*store.Record
	counts   store.Counts
	episodes []*episode.Episode
	root     string
	dir      string
}

func (f *fakeStore) PendingRecords(context.Context) ([]*store.Record, error) {
	return f.records, nil
}

func (f *fakeStore) Stats(context.Context) (store.Counts, error) {
	return f.counts, nil
}

func (f *fakeStore) EpisodesForDirectory(_ context.Context, root, dir string) ([]*episode.Episode, error) {
	f.root = root
	f.dir = dir
	return f.episodes, nil
}
