package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LoadRateWindow returns the persisted limiter state for an account, or
// (nil, nil) when the account has never been limited.
func (s *Store) LoadRateWindow(ctx context.Context, kind, accountID string) (*RateWindow, error) {
	var (
		window      RateWindow
		refilledRaw string
		startRaw    string
		sendsRaw    string
		updatedRaw  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, account_id, cap, tokens, refilled_at, sent_count, window_start, sends_json, updated_at
         FROM rate_windows WHERE kind = ? AND account_id = ?`,
		kind, accountID,
	).Scan(&window.Kind, &window.AccountID, &window.Cap, &window.Tokens, &refilledRaw,
		&window.SentCount, &startRaw, &sendsRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rate window: %w", err)
	}
	if t, err := parseTimeString(refilledRaw); err == nil {
		window.RefilledAt = t
	}
	if t, err := parseTimeString(startRaw); err == nil {
		window.WindowStart = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		window.UpdatedAt = t
	}
	window.Sends = decodeTimes(sendsRaw)
	return &window, nil
}

// SaveRateWindow upserts limiter state for an account.
func (s *Store) SaveRateWindow(ctx context.Context, window RateWindow) error {
	if window.UpdatedAt.IsZero() {
		window.UpdatedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO rate_windows (kind, account_id, cap, tokens, refilled_at, sent_count, window_start, sends_json, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(kind, account_id) DO UPDATE SET
            cap = excluded.cap,
            tokens = excluded.tokens,
            refilled_at = excluded.refilled_at,
            sent_count = excluded.sent_count,
            window_start = excluded.window_start,
            sends_json = excluded.sends_json,
            updated_at = excluded.updated_at`,
		window.Kind,
		window.AccountID,
		window.Cap,
		window.Tokens,
		formatTime(window.RefilledAt),
		window.SentCount,
		formatTime(window.WindowStart),
		encodeTimes(window.Sends),
		formatTime(window.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save rate window: %w", err)
	}
	return nil
}

// ListRateWindows returns every persisted limiter state.
func (s *Store) ListRateWindows(ctx context.Context, kind string) ([]RateWindow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id FROM rate_windows WHERE kind = ? ORDER BY account_id`, kind)
	if err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}
	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rate window: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	windows := make([]RateWindow, 0, len(accounts))
	for _, account := range accounts {
		window, err := s.LoadRateWindow(ctx, kind, account)
		if err != nil {
			return nil, err
		}
		if window != nil {
			windows = append(windows, *window)
		}
	}
	return windows, nil
}

func encodeTimes(values []time.Time) string {
	if len(values) == 0 {
		return "[]"
	}
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatTime(v)
	}
	data, err := json.Marshal(formatted)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeTimes(raw string) []time.Time {
	values := decodeStrings(raw)
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t, err := parseTimeString(v); err == nil {
			out = append(out, t)
		}
	}
	return out
}
