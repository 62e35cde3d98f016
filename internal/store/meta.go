package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const metaLastReferenceIntro = "last_reference_intro_added"

// LastReferenceIntroAdded returns the creation time of the newest reference
// intro already processed, or the zero time.
func (s *Store) LastReferenceIntroAdded(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaLastReferenceIntro).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s: %w", metaLastReferenceIntro, err)
	}
	return parseTime(sql.NullString{String: value, Valid: true}), nil
}

// SetLastReferenceIntroAdded advances the reference intro watermark.
func (s *Store) SetLastReferenceIntroAdded(ctx context.Context, ts time.Time) error {
	_, err := s.exec(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastReferenceIntro, formatTime(ts.UTC()))
	if err != nil {
		return fmt.Errorf("write %s: %w", metaLastReferenceIntro, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
