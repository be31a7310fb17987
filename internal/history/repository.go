package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timestampLayout is fixed width so stored timestamps sort as text.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// Repository defines connection history persistence.
type Repository interface {
	Create(ctx context.Context, ev *ConnectionEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// DeleteBefore removes events older than cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SQLiteRepository stores connection events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a connection history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an event.
func (r *SQLiteRepository) Create(ctx context.Context, ev *ConnectionEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_events (id, device_id, type, timestamp, details)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.DeviceID, string(ev.Type), ev.Timestamp.UTC().Format(timestampLayout), ev.Details,
	)
	if err != nil {
		return fmt.Errorf("inserting connection event: %w", err)
	}
	return nil
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	filter.Limit = min(filter.Limit, maxLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any

	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timestampLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM connection_events " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting connection events: %w", err)
	}

	query := "SELECT id, device_id, type, timestamp, details FROM connection_events " + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connection events: %w", err)
	}
	defer rows.Close()

	events := []ConnectionEvent{}
	for rows.Next() {
		var ev ConnectionEvent
		var typ, ts string
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &typ, &ts, &ev.Details); err != nil {
			return nil, fmt.Errorf("scanning connection event: %w", err)
		}
		ev.Type = EventType(typ)
		if ev.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing connection event timestamp %q: %w", ts, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// DeleteBefore removes events with a timestamp before cutoff.
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM connection_events WHERE timestamp < ?", cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning connection events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}
