package episode

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"creditscan/internal/segments"
)

var videoExtensions = map[string]struct{}{
	".3g2": {}, ".3gp": {}, ".amv": {}, ".asf": {}, ".avi": {}, ".flv": {},
	".f4v": {}, ".f4p": {}, ".f4a": {}, ".f4b": {}, ".m4v": {}, ".mkv": {},
	".mov": {}, ".qt": {}, ".mp4": {}, ".m4p": {}, ".mpg": {}, ".mp2": {},
	".mpeg": {}, ".mpe": {}, ".mpv": {}, ".m2v": {}, ".mts": {}, ".m2ts": {},
	".ts": {}, ".ogv": {}, ".ogg": {}, ".rm": {}, ".rmvb": {}, ".viv": {},
	".vob": {}, ".webm": {}, ".wmv": {},
}

// IsVideoExtension reports whether path has a recognized video container extension.
func IsVideoExtension(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Episode is one video file tracked for intro/credits detection.
type Episode struct {
	// ID is the file path relative to its library root, slash separated.
	ID string
	// Name is the file name including extension.
	Name string
	// Dir is the directory relative to the library root ("" for the root itself).
	Dir         string
	FullPath    string
	FullDirPath string

	Duration        float64
	SizeOnDisk      int64
	LastWriteOnDisk time.Time
	exists          bool

	// SizeInDB and LastWriteInDB are the values recorded at the last upsert.
	SizeInDB      int64
	LastWriteInDB time.Time
	InStore       bool

	// MetaID is the media server metadata identifier, or -1 when unknown.
	MetaID         int64
	ReferenceIntro *segments.Segment

	NeedsScanning           bool
	NeedsSilenceScanning    bool
	SilenceDetectionDone    bool
	DetectionPending        bool
	SilenceDetectionPending bool

	// Passed is set once the episode survives existence and metadata checks.
	Passed bool

	Segments *segments.Segments
}

// New builds an episode for fullPath, identified relative to root, and stats the file.
func New(fullPath, root string) *Episode {
	fullPath = filepath.Clean(fullPath)
	ep := &Episode{
		ID:          Identifier(root, fullPath),
		Name:        filepath.Base(fullPath),
		Dir:         RelativeDir(root, filepath.Dir(fullPath)),
		FullPath:    fullPath,
		FullDirPath: filepath.Dir(fullPath),
		MetaID:      -1,
		Segments:    segments.New(),
	}
	ep.Refresh()
	return ep
}

// Refresh re-reads size and modification time from disk.
func (e *Episode) Refresh() {
	info, err := os.Stat(e.FullPath)
	if err != nil || info.IsDir() {
		e.exists = false
		e.SizeOnDisk = 0
		e.LastWriteOnDisk = time.Time{}
		return
	}
	e.exists = true
	e.SizeOnDisk = info.Size()
	e.LastWriteOnDisk = info.ModTime().UTC()
}

// Exists reports whether the file was present at the last Refresh.
func (e *Episode) Exists() bool {
	return e.exists
}

// Changed reports whether the file size differs from the stored size.
func (e *Episode) Changed() bool {
	return e.SizeInDB != e.SizeOnDisk
}

// BaseName is the file name without its extension.
func (e *Episode) BaseName() string {
	return strings.TrimSuffix(e.Name, filepath.Ext(e.Name))
}

// Identifier returns fullPath relative to root using forward slashes.
func Identifier(root, fullPath string) string {
	rel, err := filepath.Rel(root, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(fullPath)
	}
	return filepath.ToSlash(rel)
}

// RelativeDir returns dir relative to root using forward slashes, "" for root.
func RelativeDir(root, dir string) string {
	rel := Identifier(root, dir)
	if rel == "." {
		return ""
	}
	return rel
}
