package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"murmur/internal/services"
)

const taskColumns = "id, name, account_id, keywords_json, exclude_keywords_json, poll_interval_seconds, min_length, max_length, filter_spam, status, watermark_at, watermark_cursor, last_poll_at, last_error, consecutive_failures, items_seen, replies_queued, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task            Task
		keywordsRaw     string
		excludeRaw      sql.NullString
		intervalSeconds int64
		filterSpam      int
		statusStr       string
		watermarkAt     sql.NullString
		watermarkCursor sql.NullString
		lastPollRaw     sql.NullString
		lastError       sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Name,
		&task.AccountID,
		&keywordsRaw,
		&excludeRaw,
		&intervalSeconds,
		&task.MinLength,
		&task.MaxLength,
		&filterSpam,
		&statusStr,
		&watermarkAt,
		&watermarkCursor,
		&lastPollRaw,
		&lastError,
		&task.ConsecutiveFailures,
		&task.ItemsSeen,
		&task.RepliesQueued,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task.Keywords = decodeStrings(keywordsRaw)
	task.ExcludeKeywords = decodeStrings(excludeRaw.String)
	task.PollInterval = time.Duration(intervalSeconds) * time.Second
	task.FilterSpam = filterSpam != 0
	task.Status = TaskStatus(statusStr)
	task.LastError = lastError.String
	task.LastPollAt = parseOptionalTime(lastPollRaw.String)
	if at, err := parseTimeString(watermarkAt.String); err == nil {
		task.Watermark.At = at
	}
	task.Watermark.Cursor = watermarkCursor.String
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

// CreateTask inserts a task in the created state.
func (s *Store) CreateTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            name, account_id, keywords_json, exclude_keywords_json, poll_interval_seconds,
            min_length, max_length, filter_spam, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Name,
		spec.AccountID,
		encodeStrings(spec.Keywords),
		encodeStrings(spec.ExcludeKeywords),
		int64(spec.PollInterval/time.Second),
		spec.MinLength,
		spec.MaxLength,
		boolToInt(spec.FilterSpam),
		TaskCreated,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask fetches a task by identifier. It returns (nil, nil) when absent.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks ordered by ID, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, statuses ...TaskStatus) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetTaskStatus transitions a task. Moving to running clears the failure
// counter so a re-authenticated task starts with a clean slate.
func (s *Store) SetTaskStatus(ctx context.Context, id int64, status TaskStatus, lastError string) error {
	if !status.Valid() {
		return fmt.Errorf("set task status: unknown status %q", status)
	}
	query := `UPDATE tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if status == TaskRunning {
		query = `UPDATE tasks SET status = ?, last_error = ?, updated_at = ?, consecutive_failures = 0 WHERE id = ?`
	}
	res, err := s.execWithRetry(ctx, query, status, nullableString(lastError), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return requireRow(res, id, "task")
}

// RecordCycle persists a successful poll cycle in a single statement: the
// advanced watermark, poll time and counters. The watermark never moves
// backwards; an attempt to regress it is rejected.
func (s *Store) RecordCycle(ctx context.Context, id int64, outcome CycleOutcome) error {
	var watermarkAt any
	if !outcome.Watermark.At.IsZero() {
		watermarkAt = formatTime(outcome.Watermark.At)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET
            watermark_at = COALESCE(?, watermark_at),
            watermark_cursor = COALESCE(?, watermark_cursor),
            last_poll_at = ?,
            last_error = NULL,
            consecutive_failures = 0,
            items_seen = items_seen + ?,
            replies_queued = replies_queued + ?,
            updated_at = ?
        WHERE id = ? AND (? IS NULL OR watermark_at IS NULL OR watermark_at <= ?)`,
		watermarkAt,
		nullableString(outcome.Watermark.Cursor),
		formatTime(outcome.PolledAt),
		outcome.ItemsSeen,
		outcome.RepliesQueued,
		formatTime(time.Now()),
		id,
		watermarkAt,
		watermarkAt,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record cycle rows: %w", err)
	}
	if affected == 1 {
		return nil
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "store", "record cycle", fmt.Sprintf("task %d", id), nil)
	}
	return services.Wrap(services.ErrInvalidState, "store", "record cycle",
		fmt.Sprintf("watermark for task %d would move backwards", id), nil)
}

// RecordTaskFailure stores the consecutive failure count and last error of a
// failed poll cycle without touching the watermark.
func (s *Store) RecordTaskFailure(ctx context.Context, id int64, failures int, lastError string, polledAt time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET consecutive_failures = ?, last_error = ?, last_poll_at = ?, updated_at = ? WHERE id = ?`,
		failures,
		nullableString(lastError),
		formatTime(polledAt),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("record task failure: %w", err)
	}
	return requireRow(res, id, "task")
}

// DeleteTask removes a task. Reply records and seen content are retained.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, id, "task")
}

// TaskStats returns task counts keyed by status.
func (s *Store) TaskStats(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[TaskStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		stats[TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

func requireRow(res sql.Result, id any, kind string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", kind, fmt.Sprintf("%s %v not found", kind, id), nil)
	}
	return nil
}
