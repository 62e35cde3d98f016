package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"creditscan/internal/segments"
)

// InsertTiming records seg for the episode. Reference timings come from an
// independent source and are kept apart from detected ones.
func (s *Store) InsertTiming(ctx context.Context, episodeID string, seg segments.Segment, isReference bool) error {
	_, err := s.exec(ctx, `INSERT INTO timings
		(episode_id, start_seconds, end_seconds, is_credits, is_silence, is_reference)
		VALUES (?, ?, ?, ?, ?, ?)`,
		episodeID, seg.Start, seg.End, seg.IsCredits, seg.IsSilence, isReference)
	if err != nil {
		return fmt.Errorf("insert timing for %s: %w", episodeID, err)
	}
	return nil
}

// DeleteEpisodeTimings removes the detected (non-reference) timings of an episode.
func (s *Store) DeleteEpisodeTimings(ctx context.Context, episodeID string) error {
	if _, err := s.exec(ctx, "DELETE FROM timings WHERE episode_id = ? AND is_reference = 0", episodeID); err != nil {
		return fmt.Errorf("delete timings for %s: %w", episodeID, err)
	}
	return nil
}

// DeleteReferenceTimings removes the reference timings of an episode.
func (s *Store) DeleteReferenceTimings(ctx context.Context, episodeID string) error {
	if _, err := s.exec(ctx, "DELETE FROM timings WHERE episode_id = ? AND is_reference = 1", episodeID); err != nil {
		return fmt.Errorf("delete reference timings for %s: %w", episodeID, err)
	}
	return nil
}

// NonReferenceTimings returns the detected timings of an episode ordered by start.
func (s *Store) NonReferenceTimings(ctx context.Context, episodeID string) (*segments.Segments, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT start_seconds, end_seconds, is_credits, is_silence
		FROM timings WHERE episode_id = ? AND is_reference = 0
		ORDER BY start_seconds, id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list timings for %s: %w", episodeID, err)
	}
	defer rows.Close()

	out := newSegments()
	for rows.Next() {
		var seg segments.Segment
		if err := rows.Scan(&seg.Start, &seg.End, &seg.IsCredits, &seg.IsSilence); err != nil {
			return nil, fmt.Errorf("scan timing: %w", err)
		}
		out.Append(seg)
	}
	return out, rows.Err()
}

// ReferenceTiming returns the stored reference intro for an episode, if any.
func (s *Store) ReferenceTiming(ctx context.Context, episodeID string) (*segments.Segment, error) {
	var seg segments.Segment
	err := s.db.QueryRowContext(ctx, `SELECT start_seconds, end_seconds, is_credits, is_silence
		FROM timings WHERE episode_id = ? AND is_reference = 1
		ORDER BY id DESC LIMIT 1`, episodeID).Scan(&seg.Start, &seg.End, &seg.IsCredits, &seg.IsSilence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference timing for %s: %w", episodeID, err)
	}
	return &seg, nil
}

// TimingCounts returns the number of stored fingerprint intro and credits
// timings for an episode; silence and reference rows are not counted.
func (s *Store) TimingCounts(ctx context.Context, episodeID string) (intros, credits int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN is_credits = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_credits = 1 THEN 1 ELSE 0 END), 0)
		FROM timings WHERE episode_id = ? AND is_reference = 0 AND is_silence = 0`, episodeID).Scan(&intros, &credits)
	if err != nil {
		return 0, 0, fmt.Errorf("count timings for %s: %w", episodeID, err)
	}
	return intros, credits, nil
}
