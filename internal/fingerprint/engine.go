package fingerprint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"creditscan/internal/logging"
	"creditscan/internal/store"
)

// ErrNoHashes is returned when a clip yields no hashes for a modality.
var ErrNoHashes = errors.New("no fingerprint hashes produced")

// Modality names used as store keys.
const (
	ModalityAudio = "audio"
	ModalityVideo = "video"
)

// Track metadata keys usable in Yes/No filters.
const (
	MetaDir       = "dir"
	MetaName      = "name"
	MetaIsCredits = "isCredits"
)

// Index persists hashes per track.
type Index interface {
	SaveFingerprint(ctx context.Context, fp store.Fingerprint) error
	LoadFingerprint(ctx context.Context, episodeID string, isCredits bool, modality string) (*store.Fingerprint, error)
	FingerprintsForDirectory(ctx context.Context, dir, modality string) ([]store.Fingerprint, error)
}

// AudioHasher produces audio hashes for a clip.
type AudioHasher interface {
	AudioHashes(ctx context.Context, clip string) ([]uint64, error)
}

// VideoHasher produces per-frame hashes for a clip at fps.
type VideoHasher interface {
	VideoFrameHashes(ctx context.Context, clip string, fps float64) ([]uint64, error)
}

// Track identifies the clip of one episode's search window.
type Track struct {
	ID          string
	Dir         string
	Name        string
	IsCredits   bool
	FileSize    int64
	WindowStart float64
}

// Meta returns the filterable metadata of the track.
func (t Track) Meta() map[string]string {
	return map[string]string{
		MetaDir:       t.Dir,
		MetaName:      t.Name,
		MetaIsCredits: strconv.FormatBool(t.IsCredits),
	}
}

func trackFromStored(fp store.Fingerprint) Track {
	return Track{
		ID:          fp.EpisodeID,
		Dir:         fp.Dir,
		Name:        fp.Name,
		IsCredits:   fp.IsCredits,
		FileSize:    fp.FileSize,
		WindowStart: fp.WindowStart,
	}
}

// Modalities selects which hash families are used.
type Modalities struct {
	Audio bool
	Video bool
}

func (m Modalities) names() []string {
	var out []string
	if m.Audio {
		out = append(out, ModalityAudio)
	}
	if m.Video {
		out = append(out, ModalityVideo)
	}
	return out
}

// Options tunes an Engine.
type Options struct {
	// FrameRate is the video sampling rate in frames per second.
	FrameRate float64
	// AudioTolerance and VideoTolerance are the bit errors a frame may carry
	// and still extend an aligned run.
	AudioTolerance int
	VideoTolerance int
	Logger         *slog.Logger
}

const (
	defaultAudioTolerance = 6
	defaultVideoTolerance = 8
	defaultFrameRate      = 2
)

// Engine hashes, indexes and matches clips.
type Engine struct {
	index     Index
	audio     AudioHasher
	video     VideoHasher
	frameRate float64
	audioTol  int
	videoTol  int
	logger    *slog.Logger
}

// New builds an engine over index using the given hashers.
func New(index Index, audio AudioHasher, video VideoHasher, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		index:     index,
		audio:     audio,
		video:     video,
		frameRate: opts.FrameRate,
		audioTol:  opts.AudioTolerance,
		videoTol:  opts.VideoTolerance,
		logger:    logging.NewComponentLogger(logger, "fingerprint"),
	}
	if e.frameRate <= 0 {
		e.frameRate = defaultFrameRate
	}
	if e.audioTol <= 0 {
		e.audioTol = defaultAudioTolerance
	}
	if e.videoTol <= 0 {
		e.videoTol = defaultVideoTolerance
	}
	return e
}

func (e *Engine) frameSeconds(modality string) float64 {
	if modality == ModalityVideo {
		return 1 / e.frameRate
	}
	return AudioFrameSeconds
}

func (e *Engine) tolerance(modality string) int {
	if modality == ModalityVideo {
		return e.videoTol
	}
	return e.audioTol
}

func (e *Engine) hash(ctx context.Context, clip, modality string) ([]uint64, error) {
	var (
		hashes []uint64
		err    error
	)
	switch modality {
	case ModalityAudio:
		if e.audio == nil {
			return nil, errors.New("no audio hasher configured")
		}
		hashes, err = e.audio.AudioHashes(ctx, clip)
	case ModalityVideo:
		if e.video == nil {
			return nil, errors.New("no video hasher configured")
		}
		hashes, err = e.video.VideoFrameHashes(ctx, clip, e.frameRate)
	default:
		return nil, fmt.Errorf("unknown modality %q", modality)
	}
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("%s %s: %w", modality, clip, ErrNoHashes)
	}
	return hashes, nil
}

// Indexed reports whether hashes for every requested modality are stored for
// track and still describe the same file and window.
func (e *Engine) Indexed(ctx context.Context, track Track, m Modalities) (bool, error) {
	names := m.names()
	if len(names) == 0 {
		return false, nil
	}
	for _, modality := range names {
		fp, err := e.index.LoadFingerprint(ctx, track.ID, track.IsCredits, modality)
		if err != nil {
			return false, err
		}
		if fp == nil || fp.FileSize != track.FileSize || fp.WindowStart != track.WindowStart || len(fp.Hashes) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Insert hashes clip for each requested modality and stores the result under
// track, replacing earlier hashes.
func (e *Engine) Insert(ctx context.Context, track Track, clip string, m Modalities) error {
	names := m.names()
	if len(names) == 0 {
		return errors.New("fingerprint insert: no modality selected")
	}
	for _, modality := range names {
		hashes, err := e.hash(ctx, clip, modality)
		if err != nil {
			return fmt.Errorf("fingerprint insert %s: %w", track.ID, err)
		}
		err = e.index.SaveFingerprint(ctx, store.Fingerprint{
			EpisodeID:    track.ID,
			Dir:          track.Dir,
			Name:         track.Name,
			IsCredits:    track.IsCredits,
			Modality:     modality,
			WindowStart:  track.WindowStart,
			FrameSeconds: e.frameSeconds(modality),
			FileSize:     track.FileSize,
			Hashes:       hashes,
		})
		if err != nil {
			return err
		}
		e.logger.Debug("fingerprint stored",
			logging.String(logging.FieldEpisodeID, track.ID),
			logging.String("modality", modality),
			logging.Int("hashes", len(hashes)),
		)
	}
	return nil
}

// QueryOptions controls a Query.
type QueryOptions struct {
	Modalities
	// Yes holds metadata every candidate track must match; "dir" is required.
	Yes map[string]string
	// No excludes a candidate when any of its metadata matches.
	No map[string]string
	// AudioThreshold and VideoThreshold are the minimum agreeing hashes for an
	// alignment to count.
	AudioThreshold int
	VideoThreshold int
	// PermittedGap is the longest unmatched stretch, in seconds, bridged
	// inside one run.
	PermittedGap float64
	// Self, when set, lets the query reuse the stored hashes of the clip's own
	// track instead of hashing the clip again.
	Self *Track
}

// Result holds the entries found per modality.
type Result struct {
	Audio []Entry
	Video []Entry
}

// Empty reports whether nothing matched.
func (r Result) Empty() bool {
	return len(r.Audio) == 0 && len(r.Video) == 0
}

// Query matches clip against every indexed track passing the filters.
func (e *Engine) Query(ctx context.Context, clip string, opts QueryOptions) (Result, error) {
	dir, ok := opts.Yes[MetaDir]
	if !ok {
		return Result{}, errors.New("fingerprint query: dir filter required")
	}
	var result Result
	for _, modality := range opts.names() {
		query, err := e.queryHashes(ctx, clip, modality, opts.Self)
		if err != nil {
			return Result{}, fmt.Errorf("fingerprint query: %w", err)
		}
		candidates, err := e.index.FingerprintsForDirectory(ctx, dir, modality)
		if err != nil {
			return Result{}, err
		}
		threshold := opts.AudioThreshold
		if modality == ModalityVideo {
			threshold = opts.VideoThreshold
		}
		params := newMatchParams(threshold, e.tolerance(modality), opts.PermittedGap, e.frameSeconds(modality))

		var entries []Entry
		for _, candidate := range candidates {
			if !accept(trackFromStored(candidate).Meta(), opts.Yes, opts.No) {
				continue
			}
			entries = append(entries, matchHashes(candidate.EpisodeID, query, candidate.Hashes, params)...)
		}
		slices.SortStableFunc(entries, func(a, b Entry) int {
			return cmp.Compare(a.TrackID, b.TrackID)
		})
		if modality == ModalityVideo {
			result.Video = entries
		} else {
			result.Audio = entries
		}
	}
	return result, nil
}

func (e *Engine) queryHashes(ctx context.Context, clip, modality string, self *Track) ([]uint64, error) {
	if self != nil {
		fp, err := e.index.LoadFingerprint(ctx, self.ID, self.IsCredits, modality)
		if err != nil {
			return nil, err
		}
		if fp != nil && fp.FileSize == self.FileSize && fp.WindowStart == self.WindowStart && len(fp.Hashes) > 0 {
			return fp.Hashes, nil
		}
	}
	return e.hash(ctx, clip, modality)
}

func accept(meta, yes, no map[string]string) bool {
	for key, want := range yes {
		if meta[key] != want {
			return false
		}
	}
	for key, reject := range no {
		if value, ok := meta[key]; ok && value == reject {
			return false
		}
	}
	return true
}
