package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"murmur/internal/platform"
	"murmur/internal/services"
)

const replyColumns = "id, source_id, task_id, account_id, author, source_text, content_kind, parent_id, category, matched_keywords_json, template_id, priority, mode, reply_text, compose_source, status, attempts, last_error, next_attempt_at, platform_reply_id, created_at, updated_at, sent_at"

func scanReply(scanner interface{ Scan(dest ...any) error }) (*ReplyRecord, error) {
	var (
		rec           ReplyRecord
		author        sql.NullString
		sourceText    sql.NullString
		kind          string
		parentID      sql.NullString
		keywordsRaw   string
		templateID    sql.NullString
		replyText     sql.NullString
		composeSource sql.NullString
		status        string
		lastError     sql.NullString
		nextRaw       string
		platformID    sql.NullString
		createdRaw    string
		updatedRaw    string
		sentRaw       sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.SourceID,
		&rec.TaskID,
		&rec.AccountID,
		&author,
		&sourceText,
		&kind,
		&parentID,
		&rec.Category,
		&keywordsRaw,
		&templateID,
		&rec.Priority,
		&rec.Mode,
		&replyText,
		&composeSource,
		&status,
		&rec.Attempts,
		&lastError,
		&nextRaw,
		&platformID,
		&createdRaw,
		&updatedRaw,
		&sentRaw,
	); err != nil {
		return nil, err
	}
	rec.Author = author.String
	rec.SourceText = sourceText.String
	rec.Kind = platform.ContentKind(kind)
	rec.ParentID = parentID.String
	rec.MatchedKeywords = decodeStrings(keywordsRaw)
	rec.TemplateID = templateID.String
	rec.Text = replyText.String
	rec.ComposeSource = ComposeSource(composeSource.String)
	rec.Status = ReplyStatus(status)
	rec.LastError = lastError.String
	rec.PlatformReplyID = platformID.String
	rec.SentAt = parseOptionalTime(sentRaw.String)
	if next, err := parseTimeString(nextRaw); err == nil {
		rec.NextAttemptAt = next
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}

// InsertReply stores a new reply record. A record for the same source
// content already existing yields services.ErrDuplicateReply and leaves the
// stored record untouched.
func (s *Store) InsertReply(ctx context.Context, rec *ReplyRecord) error {
	if rec == nil {
		return errors.New("insert reply: nil record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.NextAttemptAt.IsZero() {
		rec.NextAttemptAt = rec.CreatedAt
	}

	return s.withTx(ctx, func(tx txExecer) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reply_records (`+replyColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(source_id) DO NOTHING`,
			rec.ID,
			rec.SourceID,
			rec.TaskID,
			rec.AccountID,
			nullableString(rec.Author),
			nullableString(rec.SourceText),
			string(rec.Kind),
			nullableString(rec.ParentID),
			rec.Category,
			encodeStrings(rec.MatchedKeywords),
			nullableString(rec.TemplateID),
			rec.Priority,
			rec.Mode,
			nullableString(rec.Text),
			nullableString(string(rec.ComposeSource)),
			rec.Status,
			rec.Attempts,
			nullableString(rec.LastError),
			formatTime(rec.NextAttemptAt),
			nullableString(rec.PlatformReplyID),
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
			nullableTime(rec.SentAt),
		)
		if err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert reply rows: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrDuplicateReply, "store", "insert reply",
				fmt.Sprintf("source %s already has a reply record", rec.SourceID), nil)
		}
		return appendEvent(ctx, tx, rec, "created")
	})
}

// GetReply fetches a reply record by identifier. It returns (nil, nil) when absent.
func (s *Store) GetReply(ctx context.Context, id string) (*ReplyRecord, error) {
	return s.getReplyBy(ctx, "id", id)
}

// GetReplyBySource fetches the reply record answering the given content.
func (s *Store) GetReplyBySource(ctx context.Context, sourceID string) (*ReplyRecord, error) {
	return s.getReplyBy(ctx, "source_id", sourceID)
}

func (s *Store) getReplyBy(ctx context.Context, column, value string) (*ReplyRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+replyColumns+` FROM reply_records WHERE `+column+` = ?`, value)
	rec, err := scanReply(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	return rec, nil
}

// ListReplies returns reply records newest first.
func (s *Store) ListReplies(ctx context.Context, filter ReplyFilter) ([]*ReplyRecord, error) {
	query := `SELECT ` + replyColumns + ` FROM reply_records WHERE 1 = 1`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.TaskID > 0 {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryReplies(ctx, query, args...)
}

// DueReplies returns pending records whose next attempt time has arrived,
// highest priority first and oldest first within a priority. A positive
// limit caps the records taken from each account, so a large backlog on one
// account cannot crowd the others out of a pass.
func (s *Store) DueReplies(ctx context.Context, now time.Time, limit int) ([]*ReplyRecord, error) {
	if limit <= 0 {
		return s.queryReplies(ctx,
			`SELECT `+replyColumns+` FROM reply_records
             WHERE status = ? AND next_attempt_at <= ?
             ORDER BY priority DESC, created_at ASC, id`,
			ReplyPending, formatTime(now),
		)
	}
	return s.queryReplies(ctx,
		`SELECT `+replyColumns+` FROM (
             SELECT `+replyColumns+`, ROW_NUMBER() OVER (
                 PARTITION BY account_id
                 ORDER BY priority DESC, created_at ASC, id
             ) AS account_rank
             FROM reply_records
             WHERE status = ? AND next_attempt_at <= ?
         )
         WHERE account_rank <= ?
         ORDER BY priority DESC, created_at ASC, id`,
		ReplyPending, formatTime(now), limit,
	)
}

func (s *Store) queryReplies(ctx context.Context, query string, args ...any) ([]*ReplyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()
	var records []*ReplyRecord
	for rows.Next() {
		rec, err := scanReply(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateReply persists the mutable fields of a record and appends an audit
// event describing the transition.
func (s *Store) UpdateReply(ctx context.Context, rec *ReplyRecord, message string) error {
	if rec == nil {
		return errors.New("update reply: nil record")
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.withTx(ctx, func(tx txExecer) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE reply_records SET
                template_id = ?,
                reply_text = ?,
                compose_source = ?,
                status = ?,
                attempts = ?,
                last_error = ?,
                next_attempt_at = ?,
                platform_reply_id = ?,
                updated_at = ?,
                sent_at = ?
            WHERE id = ?`,
			nullableString(rec.TemplateID),
			nullableString(rec.Text),
			nullableString(string(rec.ComposeSource)),
			rec.Status,
			rec.Attempts,
			nullableString(rec.LastError),
			formatTime(rec.NextAttemptAt),
			nullableString(rec.PlatformReplyID),
			formatTime(rec.UpdatedAt),
			nullableTime(rec.SentAt),
			rec.ID,
		)
		if err != nil {
			return fmt.Errorf("update reply: %w", err)
		}
		if err := requireRow(res, rec.ID, "reply"); err != nil {
			return err
		}
		return appendEvent(ctx, tx, rec, message)
	})
}

// RetryReply moves a failed record back to pending with a fresh attempt
// budget. Records in any other status are rejected with ErrInvalidState.
func (s *Store) RetryReply(ctx context.Context, id string, now time.Time) (*ReplyRecord, error) {
	rec, err := s.GetReply(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "store", "retry reply", fmt.Sprintf("reply %s not found", id), nil)
	}
	if rec.Status != ReplyFailed {
		return nil, services.Wrap(services.ErrInvalidState, "store", "retry reply",
			fmt.Sprintf("reply %s is %s, only failed replies can be retried", id, rec.Status), nil)
	}
	rec.Status = ReplyPending
	rec.Attempts = 0
	rec.LastError = ""
	rec.NextAttemptAt = now
	if err := s.UpdateReply(ctx, rec, "manual retry"); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReplyHistory returns the audit trail of a record, oldest first.
func (s *Store) ReplyHistory(ctx context.Context, id string) ([]ReplyEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, status, attempts, message, created_at
         FROM reply_events WHERE record_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("reply history: %w", err)
	}
	defer rows.Close()
	var events []ReplyEvent
	for rows.Next() {
		var (
			event      ReplyEvent
			status     string
			message    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &event.RecordID, &status, &event.Attempts, &message, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan reply event: %w", err)
		}
		event.Status = ReplyStatus(status)
		event.Message = message.String
		if created, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = created
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ReplyStats returns reply record counts keyed by status.
func (s *Store) ReplyStats(ctx context.Context) (map[ReplyStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reply_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("reply stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[ReplyStatus]int, len(AllReplyStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan reply stats: %w", err)
		}
		stats[ReplyStatus(status)] = count
	}
	return stats, rows.Err()
}

// CountSentSince counts replies an account sent at or after the cutoff.
func (s *Store) CountSentSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reply_records WHERE account_id = ? AND status = ? AND sent_at >= ?`,
		accountID, ReplySent, formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return count, nil
}

func appendEvent(ctx context.Context, tx txExecer, rec *ReplyRecord, message string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reply_events (record_id, status, attempts, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Status, rec.Attempts, nullableString(message), formatTime(rec.UpdatedAt),
	); err != nil {
		return fmt.Errorf("append reply event: %w", err)
	}
	return nil
}
