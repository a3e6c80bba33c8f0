package store

import (
	"context"
	"fmt"
	"time"
)

// HasSeen reports whether source content was already recorded by any task.
func (s *Store) HasSeen(ctx context.Context, sourceID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM seen_content WHERE source_id = ?)`, sourceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has seen: %w", err)
	}
	return exists == 1, nil
}

// MarkSeen records source content as processed. It reports false when the
// identifier was already present; the original first-seen time is kept.
func (s *Store) MarkSeen(ctx context.Context, sourceID string, taskID int64, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO seen_content (source_id, task_id, first_seen_at) VALUES (?, ?, ?)
         ON CONFLICT(source_id) DO NOTHING`,
		sourceID, taskID, formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen rows: %w", err)
	}
	return affected == 1, nil
}

// PruneSeen deletes seen entries first recorded before the cutoff and
// returns how many were removed.
func (s *Store) PruneSeen(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM seen_content WHERE first_seen_at < ?`, formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	return res.RowsAffected()
}

// CountSeen returns the number of retained seen entries.
func (s *Store) CountSeen(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_content`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count seen: %w", err)
	}
	return count, nil
}

// SeenSince lists source identifiers first seen at or after the cutoff. The
// dedup index uses it to warm its in-memory set.
func (s *Store) SeenSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM seen_content WHERE first_seen_at >= ?`, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("seen since: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
