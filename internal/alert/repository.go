package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines alert persistence.
type Repository interface {
	Create(ctx context.Context, a *Alert) error

	// List returns alerts newest first. unreadOnly restricts to unread.
	List(ctx context.Context, unreadOnly bool) ([]Alert, error)

	// MarkRead returns ErrAlertNotFound if the alert does not exist.
	MarkRead(ctx context.Context, id string) error

	// DeleteAll removes every alert and reports how many were removed.
	DeleteAll(ctx context.Context) (int, error)

	CountUnread(ctx context.Context) (int, error)
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates an alert repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an alert.
func (r *SQLiteRepository) Create(ctx context.Context, a *Alert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, device_id, type, title, message, timestamp, read)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, string(a.Type), a.Title, a.Message,
		a.Timestamp.UTC().Format(timestampLayout), boolToInt(a.Read),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// List returns alerts ordered by timestamp, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, unreadOnly bool) ([]Alert, error) {
	query := "SELECT id, device_id, type, title, message, timestamp, read FROM alerts"
	if unreadOnly {
		query += " WHERE read = 0"
	}
	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var a Alert
		var typ, ts string
		var read int
		if err := rows.Scan(&a.ID, &a.DeviceID, &typ, &a.Title, &a.Message, &ts, &read); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Type = Type(typ)
		a.Read = read != 0
		if a.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing alert timestamp %q: %w", ts, err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// MarkRead sets the read flag. Marking an already read alert succeeds.
func (r *SQLiteRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE alerts SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking alert read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// DeleteAll removes every alert.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts")
	if err != nil {
		return 0, fmt.Errorf("clearing alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// CountUnread returns the number of unread alerts.
func (r *SQLiteRepository) CountUnread(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts WHERE read = 0").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread alerts: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
