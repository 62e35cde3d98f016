package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Fingerprint is the stored hash sequence of one search-window clip.
type Fingerprint struct {
	EpisodeID    string
	Dir          string
	Name         string
	IsCredits    bool
	Modality     string
	WindowStart  float64
	FrameSeconds float64
	FileSize     int64
	Hashes       []uint64
	CreatedAt    time.Time
}

const fingerprintColumns = `episode_id, dir, name, is_credits, modality, window_start, frame_seconds, file_size, hashes, created_at`

func encodeHashes(hashes []uint64) []byte {
	buf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.LittleEndian.PutUint64(buf[i*8:], h)
	}
	return buf
}

func decodeHashes(buf []byte) ([]uint64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("corrupt hash blob of %d bytes", len(buf))
	}
	hashes := make([]uint64, len(buf)/8)
	for i := range hashes {
		hashes[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return hashes, nil
}

func scanFingerprint(row rowScanner) (*Fingerprint, error) {
	var (
		fp        Fingerprint
		blob      []byte
		createdAt string
	)
	if err := row.Scan(&fp.EpisodeID, &fp.Dir, &fp.Name, &fp.IsCredits, &fp.Modality,
		&fp.WindowStart, &fp.FrameSeconds, &fp.FileSize, &blob, &createdAt); err != nil {
		return nil, err
	}
	hashes, err := decodeHashes(blob)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", fp.EpisodeID, err)
	}
	fp.Hashes = hashes
	fp.CreatedAt = parseTime(sql.NullString{String: createdAt, Valid: true})
	return &fp, nil
}

// SaveFingerprint stores or replaces the hashes for an episode, category and modality.
func (s *Store) SaveFingerprint(ctx context.Context, fp Fingerprint) error {
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO fingerprints (`+fingerprintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id, is_credits, modality) DO UPDATE SET
			dir = excluded.dir,
			name = excluded.name,
			window_start = excluded.window_start,
			frame_seconds = excluded.frame_seconds,
			file_size = excluded.file_size,
			hashes = excluded.hashes,
			created_at = excluded.created_at`,
		fp.EpisodeID, fp.Dir, fp.Name, fp.IsCredits, fp.Modality, fp.WindowStart, fp.FrameSeconds,
		fp.FileSize, encodeHashes(fp.Hashes), formatTime(fp.CreatedAt))
	if err != nil {
		return fmt.Errorf("save fingerprint for %s: %w", fp.EpisodeID, err)
	}
	return nil
}

// LoadFingerprint returns the stored hashes for an episode, category and
// modality, or nil when none are stored.
func (s *Store) LoadFingerprint(ctx context.Context, episodeID string, isCredits bool, modality string) (*Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fingerprintColumns+` FROM fingerprints
		WHERE episode_id = ? AND is_credits = ? AND modality = ?`, episodeID, isCredits, modality)
	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fingerprint for %s: %w", episodeID, err)
	}
	return fp, nil
}

// FingerprintsForDirectory returns every stored fingerprint of a modality whose
// episode lives in dir.
func (s *Store) FingerprintsForDirectory(ctx context.Context, dir, modality string) ([]Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fingerprintColumns+` FROM fingerprints
		WHERE dir = ? AND modality = ? ORDER BY name, is_credits`, dir, modality)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints for %q: %w", dir, err)
	}
	defer rows.Close()

	var out []Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fp)
	}
	return out, rows.Err()
}

// DeleteFingerprints removes every stored fingerprint for an episode.
func (s *Store) DeleteFingerprints(ctx context.Context, episodeID string) error {
	if _, err := s.exec(ctx, "DELETE FROM fingerprints WHERE episode_id = ?", episodeID); err != nil {
		return fmt.Errorf("delete fingerprints for %s: %w", episodeID, err)
	}
	return nil
}
