package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"creditscan/internal/episode"
	"creditscan/internal/segments"
)

// Record is the stored state of an episode.
type Record struct {
	ID                      string
	Name                    string
	Dir                     string
	FullPath                string
	FileSize                int64
	LastWrite               time.Time
	Duration                float64
	MetaID                  int64
	DetectionPending        bool
	SilenceDetectionPending bool
	SilenceDetectionDone    bool
	UpdatedAt               time.Time
}

const episodeColumns = `id, name, dir, full_path, file_size, last_write, duration, meta_id,
	detection_pending, silence_detection_pending, silence_detection_done, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		lastWrite sql.NullString
		updatedAt string
	)
	if err := row.Scan(
		&rec.ID, &rec.Name, &rec.Dir, &rec.FullPath, &rec.FileSize, &lastWrite, &rec.Duration, &rec.MetaID,
		&rec.DetectionPending, &rec.SilenceDetectionPending, &rec.SilenceDetectionDone, &updatedAt,
	); err != nil {
		return nil, err
	}
	rec.LastWrite = parseTime(lastWrite)
	rec.UpdatedAt = parseTime(sql.NullString{String: updatedAt, Valid: true})
	return &rec, nil
}

// GetRecord returns the stored record for id, or nil when none exists.
func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return rec, nil
}

// Load copies the stored state for ep onto it, including its non-reference
// timings. Episodes without a record are left untouched apart from InStore.
func (s *Store) Load(ctx context.Context, ep *episode.Episode) error {
	rec, err := s.GetRecord(ctx, ep.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		ep.InStore = false
		return nil
	}
	applyRecord(ep, rec)
	timings, err := s.NonReferenceTimings(ctx, ep.ID)
	if err != nil {
		return err
	}
	ep.Segments = timings
	return nil
}

func applyRecord(ep *episode.Episode, rec *Record) {
	ep.InStore = true
	ep.SizeInDB = rec.FileSize
	ep.LastWriteInDB = rec.LastWrite
	if ep.Duration <= 0 {
		ep.Duration = rec.Duration
	}
	if rec.MetaID >= 0 {
		ep.MetaID = rec.MetaID
	}
	ep.DetectionPending = rec.DetectionPending
	ep.SilenceDetectionPending = rec.SilenceDetectionPending
	ep.SilenceDetectionDone = rec.SilenceDetectionDone
}

// EpisodesForDirectory returns every stored episode whose relative directory
// is dir, rebuilt against root and carrying its non-reference timings.
func (s *Store) EpisodesForDirectory(ctx context.Context, root, dir string) ([]*episode.Episode, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE dir = ? ORDER BY name", dir)
	if err != nil {
		return nil, fmt.Errorf("list episodes for %q: %w", dir, err)
	}
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	episodes := make([]*episode.Episode, 0, len(records))
	for _, rec := range records {
		ep := episode.New(rec.FullPath, root)
		ep.ID = rec.ID
		applyRecord(ep, rec)
		timings, err := s.NonReferenceTimings(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		ep.Segments = timings
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// Upsert writes the episode's current on-disk state and flags, then marks it
// as recorded with the current size.
func (s *Store) Upsert(ctx context.Context, ep *episode.Episode) error {
	now := time.Now().UTC()
	_, err := s.exec(ctx, `INSERT INTO episodes (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dir = excluded.dir,
			full_path = excluded.full_path,
			file_size = excluded.file_size,
			last_write = excluded.last_write,
			duration = excluded.duration,
			meta_id = excluded.meta_id,
			detection_pending = excluded.detection_pending,
			silence_detection_pending = excluded.silence_detection_pending,
			silence_detection_done = excluded.silence_detection_done,
			updated_at = excluded.updated_at`,
		ep.ID, ep.Name, ep.Dir, ep.FullPath, ep.SizeOnDisk, nullableTime(ep.LastWriteOnDisk), ep.Duration, ep.MetaID,
		ep.DetectionPending, ep.SilenceDetectionPending, ep.SilenceDetectionDone, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert episode %s: %w", ep.ID, err)
	}
	ep.InStore = true
	ep.SizeInDB = ep.SizeOnDisk
	ep.LastWriteInDB = ep.LastWriteOnDisk
	return nil
}

// Delete removes the episode together with its timings and fingerprints.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			"DELETE FROM timings WHERE episode_id = ?",
			"DELETE FROM fingerprints WHERE episode_id = ?",
			"DELETE FROM episodes WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("delete episode %s: %w", id, err)
			}
		}
		return nil
	})
}

// SetPending marks an episode for detection and/or silence detection.
func (s *Store) SetPending(ctx context.Context, id string, detection, silence bool) error {
	_, err := s.exec(ctx, `UPDATE episodes
		SET detection_pending = ?, silence_detection_pending = ?, updated_at = ?
		WHERE id = ?`, detection, silence, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set pending %s: %w", id, err)
	}
	return nil
}

// ClearPendingForDirectory resets pending flags for every episode in dir.
func (s *Store) ClearPendingForDirectory(ctx context.Context, dir string) error {
	_, err := s.exec(ctx, `UPDATE episodes
		SET detection_pending = 0, silence_detection_pending = 0, updated_at = ?
		WHERE dir = ? AND (detection_pending = 1 OR silence_detection_pending = 1)`,
		formatTime(time.Now().UTC()), dir)
	if err != nil {
		return fmt.Errorf("clear pending for %q: %w", dir, err)
	}
	return nil
}

// PendingDirectories returns the absolute directories holding at least one
// pending episode, sorted.
func (s *Store) PendingDirectories(ctx context.Context) ([]string, error) {
	records, err := s.PendingRecords(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var dirs []string
	for _, rec := range records {
		dir := filepath.Dir(rec.FullPath)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// PendingRecords lists every pending episode ordered by full path.
func (s *Store) PendingRecords(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+episodeColumns+` FROM episodes
		WHERE detection_pending = 1 OR silence_detection_pending = 1
		ORDER BY full_path`)
	if err != nil {
		return nil, fmt.Errorf("list pending episodes: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Counts summarises the store for status output.
type Counts struct {
	Episodes     int
	Pending      int
	Timings      int
	Fingerprints int
}

// Stats returns row counts for status output.
func (s *Store) Stats(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(1) FROM episodes", &c.Episodes},
		{"SELECT COUNT(1) FROM episodes WHERE detection_pending = 1 OR silence_detection_pending = 1", &c.Pending},
		{"SELECT COUNT(1) FROM timings WHERE is_reference = 0", &c.Timings},
		{"SELECT COUNT(1) FROM fingerprints", &c.Fingerprints},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("store stats: %w", err)
		}
	}
	return c, nil
}

func newSegments() *segments.Segments {
	return segments.New()
}
