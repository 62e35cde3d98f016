package testsupport

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const plexSchema = `
CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, tag TEXT, tag_type INTEGER);
CREATE TABLE media_items (id INTEGER PRIMARY KEY AUTOINCREMENT, metadata_item_id INTEGER);
CREATE TABLE media_parts (id INTEGER PRIMARY KEY AUTOINCREMENT, media_item_id INTEGER, file TEXT);
CREATE TABLE taggings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metadata_item_id INTEGER,
	tag_id INTEGER,
	"index" INTEGER,
	text TEXT,
	time_offset INTEGER,
	end_time_offset INTEGER,
	thumb_url TEXT,
	created_at INTEGER,
	extra_data TEXT
);
INSERT INTO tags (tag, tag_type) VALUES ('Director', 4);
INSERT INTO tags (tag, tag_type) VALUES ('', 12);
`

// PlexFixture is a minimal Plex library database for tests.
type PlexFixture struct {
	t    testing.TB
	Path string
	db   *sql.DB
}

// NewPlexDB creates a Plex-shaped database at path.
func NewPlexDB(t testing.TB, path string) *PlexFixture {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open plex fixture: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(plexSchema); err != nil {
		t.Fatalf("create plex schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PlexFixture{t: t, Path: path, db: db}
}

// AddMedia registers fullPath under metadata item metaID.
func (p *PlexFixture) AddMedia(fullPath string, metaID int64) {
	p.t.Helper()
	res, err := p.db.Exec("INSERT INTO media_items (metadata_item_id) VALUES (?)", metaID)
	if err != nil {
		p.t.Fatalf("insert media item: %v", err)
	}
	itemID, _ := res.LastInsertId()
	if _, err := p.db.Exec("INSERT INTO media_parts (media_item_id, file) VALUES (?, ?)", itemID, fullPath); err != nil {
		p.t.Fatalf("insert media part: %v", err)
	}
}

// AddReferenceIntro inserts a Plex-detected intro marker created at createdAt.
func (p *PlexFixture) AddReferenceIntro(metaID int64, startMs, endMs int64, createdAt time.Time) {
	p.t.Helper()
	_, err := p.db.Exec(`INSERT INTO taggings
		(metadata_item_id, tag_id, "index", text, time_offset, end_time_offset, thumb_url, created_at, extra_data)
		VALUES (?, 2, 0, 'intro', ?, ?, '', ?, 'pv%3Aversion=5')`, metaID, startMs, endMs, createdAt.Unix())
	if err != nil {
		p.t.Fatalf("insert reference intro: %v", err)
	}
}

// MarkerRow is a taggings row as seen by tests.
type MarkerRow struct {
	Index   int
	Text    string
	StartMs int64
	EndMs   int64
}

// Markers returns the intro/credits rows of metaID ordered by index.
func (p *PlexFixture) Markers(metaID int64) []MarkerRow {
	p.t.Helper()
	rows, err := p.db.Query(`SELECT "index", text, time_offset, end_time_offset FROM taggings
		WHERE metadata_item_id = ? AND text IN ('intro', 'credits') ORDER BY "index", id`, metaID)
	if err != nil {
		p.t.Fatalf("query markers: %v", err)
	}
	defer rows.Close()

	var out []MarkerRow
	for rows.Next() {
		var m MarkerRow
		if err := rows.Scan(&m.Index, &m.Text, &m.StartMs, &m.EndMs); err != nil {
			p.t.Fatalf("scan marker: %v", err)
		}
		out = append(out, m)
	}
	return out
}
