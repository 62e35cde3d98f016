package scanner

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/fingerprint"
	"creditscan/internal/logging"
	"creditscan/internal/plexdb"
	"creditscan/internal/segments"
)

// Store is the local episode and timing store.
type Store interface {
	Load(ctx context.Context, ep *episode.Episode) error
	EpisodesForDirectory(ctx context.Context, root, dir string) ([]*episode.Episode, error)
	Upsert(ctx context.Context, ep *episode.Episode) error
	Delete(ctx context.Context, id string) error
	SetPending(ctx context.Context, id string, detection, silence bool) error
	ClearPendingForDirectory(ctx context.Context, dir string) error
	PendingDirectories(ctx context.Context) ([]string, error)
	TimingCounts(ctx context.Context, id string) (intros, credits int, err error)
	NonReferenceTimings(ctx context.Context, id string) (*segments.Segments, error)
	InsertTiming(ctx context.Context, id string, seg segments.Segment, isReference bool) error
	DeleteEpisodeTimings(ctx context.Context, id string) error
	DeleteReferenceTimings(ctx context.Context, id string) error
	ReferenceTiming(ctx context.Context, id string) (*segments.Segment, error)
	LastReferenceIntroAdded(ctx context.Context) (time.Time, error)
	SetLastReferenceIntroAdded(ctx context.Context, ts time.Time) error
}

// MetadataStore is the media server database holding episode ids and markers.
type MetadataStore interface {
	MetadataID(ctx context.Context, fullPath string) (int64, error)
	ReferenceIntro(ctx context.Context, metaID int64) (*segments.Segment, error)
	DeleteExistingMarkers(ctx context.Context, metaID int64) error
	InsertMarker(ctx context.Context, metaID int64, seg segments.Segment, index int) error
	RecentReferenceIntros(ctx context.Context, since time.Time, limit int) ([]plexdb.RecentIntro, error)
}

// Cutter cuts search-window clips and analyses silence.
type Cutter interface {
	Cut(ctx context.Context, src string, start, end float64, wantVideo, wantAudio bool, sampleRate int, dst string) error
	DetectSilence(ctx context.Context, clip string, minDuration, thresholdDb float64) ([]segments.Segment, error)
}

// Engine indexes and matches clips.
type Engine interface {
	Indexed(ctx context.Context, track fingerprint.Track, m fingerprint.Modalities) (bool, error)
	Insert(ctx context.Context, track fingerprint.Track, clip string, m fingerprint.Modalities) error
	Query(ctx context.Context, clip string, opts fingerprint.QueryOptions) (fingerprint.Result, error)
}

// DurationProber returns the duration of a media file in seconds.
type DurationProber func(ctx context.Context, path string) (float64, error)

// Dependencies wires the scanner to its collaborators.
type Dependencies struct {
	Store  Store
	Meta   MetadataStore
	Cutter Cutter
	Engine Engine
	Probe  DurationProber
}

// Scanner runs detection over library directories.
type Scanner struct {
	cfg    *config.Config
	store  Store
	meta   MetadataStore
	cutter Cutter
	engine Engine
	probe  DurationProber
	logger *slog.Logger

	mu     sync.Mutex
	ignore map[string]struct{}
}

// New constructs a Scanner.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Scanner, error) {
	if cfg == nil {
		return nil, errors.New("scanner: config is required")
	}
	if deps.Store == nil || deps.Meta == nil || deps.Cutter == nil || deps.Engine == nil || deps.Probe == nil {
		return nil, errors.New("scanner: store, metadata store, cutter, engine and prober are required")
	}
	return &Scanner{
		cfg:    cfg,
		store:  deps.Store,
		meta:   deps.Meta,
		cutter: deps.Cutter,
		engine: deps.Engine,
		probe:  deps.Probe,
		logger: logging.NewComponentLogger(logger, "scanner"),
		ignore: make(map[string]struct{}),
	}, nil
}

// Ignored reports whether dir was set aside after a failed scan.
func (s *Scanner) Ignored(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ignore[filepath.Clean(dir)]
	return ok
}

func (s *Scanner) setIgnored(dir string, ignored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir = filepath.Clean(dir)
	if ignored {
		s.ignore[dir] = struct{}{}
		return
	}
	delete(s.ignore, dir)
}

func (s *Scanner) episodeLogger(logger *slog.Logger, ep *episode.Episode) *slog.Logger {
	return logger.With(logging.String(logging.FieldEpisodeID, ep.ID))
}

// loadEpisode builds the episode at fullPath with its stored state, falling
// back to the metadata store for the media server id.
func (s *Scanner) loadEpisode(ctx context.Context, fullPath string) (*episode.Episode, error) {
	root := s.cfg.LibraryRootFor(filepath.Dir(fullPath))
	ep := episode.New(fullPath, root)
	if err := s.store.Load(ctx, ep); err != nil {
		return nil, err
	}
	if ep.MetaID < 0 {
		metaID, err := s.meta.MetadataID(ctx, ep.FullPath)
		if err != nil {
			return nil, err
		}
		ep.MetaID = metaID
	}
	return ep, nil
}
