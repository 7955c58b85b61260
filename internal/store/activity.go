// ABOUTME: Activity log entity store methods
// ABOUTME: Records login/logout/kick events with request metadata for later review

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendActivity appends a new entry to the activity log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendActivity(ctx context.Context, rec *ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, user_id, action, detail, ip, user_agent, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.UserID,
		string(rec.Action),
		rec.Detail,
		orUnknown(rec.IP),
		orUnknown(rec.UserAgent),
		formatTime(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting activity record: %w", err)
	}

	s.logger.Debug("appended activity", "id", rec.ID, "user_id", rec.UserID, "action", rec.Action)
	return nil
}

// ListActivity returns activity records newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]*ActivityRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `SELECT id, user_id, action, detail, ip, user_agent, ts FROM activity_log WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}
	query += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*ActivityRecord
	for rows.Next() {
		var rec ActivityRecord
		var action, ts string
		if err := rows.Scan(&rec.ID, &rec.UserID, &action, &rec.Detail, &rec.IP, &rec.UserAgent, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		rec.Action = ActivityAction(action)
		if rec.Timestamp, err = parseTime("ts", ts); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return records, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
