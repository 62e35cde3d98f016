package plexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"creditscan/internal/segments"
)

// ErrNotFound is returned when the database lacks the marker tag row.
var ErrNotFound = errors.New("plex marker tag not found")

const (
	markerTagType = 12
	// ownMarker tags rows written by creditscan so they are never read back as
	// reference intros.
	ownMarker   = "creditscan=1"
	ownExtra    = "pv%3Aversion=5&" + ownMarker
	textIntro   = "intro"
	textCredits = "credits"
)

// DB reads episode metadata from, and writes intro/credits markers to, the
// Plex Media Server library database.
type DB struct {
	db        *sql.DB
	path      string
	markerTag int64
}

// Open connects to the Plex library database at path. The file must exist.
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("plex database path not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("plex database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open plex database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 10000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure plex database: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Close closes the database connection.
func (p *DB) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Path returns the database file location.
func (p *DB) Path() string {
	return p.path
}

// Ping verifies the database is readable.
func (p *DB) Ping(ctx context.Context) error {
	_, err := p.tagID(ctx)
	return err
}

func (p *DB) tagID(ctx context.Context) (int64, error) {
	if p.markerTag > 0 {
		return p.markerTag, nil
	}
	var id int64
	err := p.db.QueryRowContext(ctx, "SELECT id FROM tags WHERE tag_type = ? ORDER BY id LIMIT 1", markerTagType).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup marker tag: %w", err)
	}
	p.markerTag = id
	return id, nil
}

// MetadataID returns the metadata item id of the media part stored at
// fullPath, or -1 when Plex does not know the file.
func (p *DB) MetadataID(ctx context.Context, fullPath string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `SELECT mi.metadata_item_id
		FROM media_parts mp
		JOIN media_items mi ON mi.id = mp.media_item_id
		WHERE mp.file = ?
		LIMIT 1`, fullPath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("lookup metadata id: %w", err)
	}
	return id, nil
}

// ReferenceIntro returns the intro marker Plex detected for metaID, if any.
func (p *DB) ReferenceIntro(ctx context.Context, metaID int64) (*segments.Segment, error) {
	tag, err := p.tagID(ctx)
	if err != nil {
		return nil, err
	}
	var startMs, endMs int64
	err = p.db.QueryRowContext(ctx, `SELECT time_offset, end_time_offset
		FROM taggings
		WHERE metadata_item_id = ? AND tag_id = ? AND text = ?
			AND (extra_data IS NULL OR extra_data NOT LIKE ?)
		ORDER BY "index" LIMIT 1`, metaID, tag, textIntro, "%"+ownMarker+"%").Scan(&startMs, &endMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup reference intro: %w", err)
	}
	return &segments.Segment{Start: fromMillis(startMs), End: fromMillis(endMs)}, nil
}

// DeleteExistingMarkers removes every intro and credits marker of metaID.
// Reference intros are expected to have been captured locally beforehand.
func (p *DB) DeleteExistingMarkers(ctx context.Context, metaID int64) error {
	tag, err := p.tagID(ctx)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `DELETE FROM taggings
		WHERE metadata_item_id = ? AND tag_id = ? AND text IN (?, ?)`, metaID, tag, textIntro, textCredits)
	if err != nil {
		return fmt.Errorf("delete markers for %d: %w", metaID, err)
	}
	return nil
}

// InsertMarker writes seg as an intro or credits marker with the given
// 1-based index.
func (p *DB) InsertMarker(ctx context.Context, metaID int64, seg segments.Segment, index int) error {
	tag, err := p.tagID(ctx)
	if err != nil {
		return err
	}
	text := textIntro
	if seg.IsCredits {
		text = textCredits
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO taggings
		(metadata_item_id, tag_id, "index", text, time_offset, end_time_offset, thumb_url, created_at, extra_data)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		metaID, tag, index, text, toMillis(seg.Start), toMillis(seg.End), time.Now().Unix(), ownExtra)
	if err != nil {
		return fmt.Errorf("insert marker for %d: %w", metaID, err)
	}
	return nil
}

// Marker is a marker row as stored in Plex.
type Marker struct {
	Index   int
	Segment segments.Segment
	Own     bool
}

// Markers lists the intro and credits markers of metaID in index order.
func (p *DB) Markers(ctx context.Context, metaID int64) ([]Marker, error) {
	tag, err := p.tagID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT "index", text, time_offset, end_time_offset, COALESCE(extra_data, '')
		FROM taggings
		WHERE metadata_item_id = ? AND tag_id = ? AND text IN (?, ?)
		ORDER BY "index", id`, metaID, tag, textIntro, textCredits)
	if err != nil {
		return nil, fmt.Errorf("list markers for %d: %w", metaID, err)
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var (
			m              Marker
			text, extra    string
			startMs, endMs int64
		)
		if err := rows.Scan(&m.Index, &text, &startMs, &endMs, &extra); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		m.Segment = segments.Segment{Start: fromMillis(startMs), End: fromMillis(endMs), IsCredits: text == textCredits}
		m.Own = strings.Contains(extra, ownMarker)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentIntro is a reference intro added to Plex after a given time.
type RecentIntro struct {
	MetaID    int64
	FullPath  string
	Segment   segments.Segment
	CreatedAt time.Time
}

// RecentReferenceIntros lists reference intros created after since, oldest
// first, at most limit rows (0 for no limit). Plex stores created_at in whole
// seconds, so a capped batch is extended to the end of its last second: a
// caller advancing its watermark to the last CreatedAt never skips the rest
// of that second.
func (p *DB) RecentReferenceIntros(ctx context.Context, since time.Time, limit int) ([]RecentIntro, error) {
	tag, err := p.tagID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	out, lastID, err := p.recentIntros(ctx, tag, "t.created_at > ?", limit, since.Unix())
	if err != nil || len(out) < limit {
		return out, err
	}
	second := out[len(out)-1].CreatedAt.Unix()
	rest, _, err := p.recentIntros(ctx, tag, "t.created_at = ? AND t.id > ?", math.MaxInt32, second, lastID)
	if err != nil {
		return nil, err
	}
	return append(out, rest...), nil
}

// recentIntros runs the reference intro query with an extra condition and
// returns the rows plus the taggings id of the last one.
func (p *DB) recentIntros(ctx context.Context, tag int64, cond string, limit int, condArgs ...any) ([]RecentIntro, int64, error) {
	args := append([]any{tag, textIntro}, condArgs...)
	args = append(args, "%"+ownMarker+"%", limit)
	rows, err := p.db.QueryContext(ctx, `SELECT t.id, t.metadata_item_id, mp.file, t.time_offset, t.end_time_offset, t.created_at
		FROM taggings t
		JOIN media_items mi ON mi.metadata_item_id = t.metadata_item_id
		JOIN media_parts mp ON mp.media_item_id = mi.id
		WHERE t.tag_id = ? AND t.text = ? AND `+cond+`
			AND (t.extra_data IS NULL OR t.extra_data NOT LIKE ?)
		ORDER BY t.created_at, t.id
		LIMIT ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recent intros: %w", err)
	}
	defer rows.Close()

	var (
		out    []RecentIntro
		lastID int64
	)
	for rows.Next() {
		var (
			intro          RecentIntro
			startMs, endMs int64
			created        int64
		)
		if err := rows.Scan(&lastID, &intro.MetaID, &intro.FullPath, &startMs, &endMs, &created); err != nil {
			return nil, 0, fmt.Errorf("scan recent intro: %w", err)
		}
		intro.Segment = segments.Segment{Start: fromMillis(startMs), End: fromMillis(endMs)}
		intro.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, intro)
	}
	return out, lastID, rows.Err()
}

func toMillis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

func fromMillis(ms int64) float64 {
	return float64(ms) / 1000
}
