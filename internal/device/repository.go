package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence. The SQLite implementation backs
// the daemon; tests substitute an in-memory mock.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns every known device ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists if the ID is taken.
	Create(ctx context.Context, device *Device) error

	// Upsert inserts the device or replaces the stored row with the same ID.
	Upsert(ctx context.Context, device *Device) error

	// Delete returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus changes only the connection status. When the new status
	// is connected, last_connected is set to at.
	UpdateStatus(ctx context.Context, id string, status ConnectionStatus, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `
	id, name, category, status, signal_strength, sensor_accuracy, battery_level,
	bandwidth, mac_address, ip_address, manufacturer, model, firmware_version,
	capabilities, last_connected, health_status, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	args, err := r.prepareWrite(device)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, "INSERT INTO devices ("+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a device, keeping the original created_at.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	args, err := r.prepareWrite(device)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, "INSERT INTO devices ("+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			status = excluded.status,
			signal_strength = excluded.signal_strength,
			sensor_accuracy = excluded.sensor_accuracy,
			battery_level = excluded.battery_level,
			bandwidth = excluded.bandwidth,
			mac_address = excluded.mac_address,
			ip_address = excluded.ip_address,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			firmware_version = excluded.firmware_version,
			capabilities = excluded.capabilities,
			last_connected = excluded.last_connected,
			health_status = excluded.health_status,
			updated_at = excluded.updated_at`, args...)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// prepareWrite stamps timestamps and builds the column arguments in
// deviceColumns order.
func (r *SQLiteRepository) prepareWrite(device *Device) ([]any, error) {
	bandwidthJSON, err := json.Marshal(device.Bandwidth)
	if err != nil {
		return nil, fmt.Errorf("marshalling bandwidth: %w", err)
	}
	caps := device.Capabilities
	if caps == nil {
		caps = []string{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return nil, fmt.Errorf("marshalling capabilities: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	return []any{
		device.ID,
		device.Name,
		string(device.Category),
		string(device.Status),
		device.SignalStrength,
		device.SensorAccuracy,
		nullableInt(device.BatteryLevel),
		string(bandwidthJSON),
		device.MACAddress,
		nullableString(device.IPAddress),
		nullableString(device.Manufacturer),
		nullableString(device.Model),
		nullableString(device.FirmwareVersion),
		string(capsJSON),
		nullableTime(device.LastConnected),
		string(device.HealthStatus),
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	}, nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(result)
}

// UpdateStatus changes the connection status of a stored device.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status ConnectionStatus, at time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(status), now, id}
	if status == StatusConnected {
		query = `UPDATE devices SET status = ?, last_connected = ?, updated_at = ? WHERE id = ?`
		args = []any{string(status), at.UTC().Format(time.RFC3339), now, id}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var category, status, healthStatus string
	var battery sql.NullInt64
	var ipAddress, manufacturer, model, firmwareVersion, lastConnected sql.NullString
	var bandwidthJSON, capsJSON, createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&category,
		&status,
		&d.SignalStrength,
		&d.SensorAccuracy,
		&battery,
		&bandwidthJSON,
		&d.MACAddress,
		&ipAddress,
		&manufacturer,
		&model,
		&firmwareVersion,
		&capsJSON,
		&lastConnected,
		&healthStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Category = Category(category)
	d.Status = ConnectionStatus(status)
	d.HealthStatus = HealthStatus(healthStatus)

	if battery.Valid {
		d.BatteryLevel = Ptr(int(battery.Int64))
	}
	d.IPAddress = fromNullString(ipAddress)
	d.Manufacturer = fromNullString(manufacturer)
	d.Model = fromNullString(model)
	d.FirmwareVersion = fromNullString(firmwareVersion)

	if lastConnected.Valid {
		if t, err := time.Parse(time.RFC3339, lastConnected.String); err == nil {
			d.LastConnected = t
		}
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(bandwidthJSON), &d.Bandwidth); err != nil {
		return nil, fmt.Errorf("unmarshalling bandwidth: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	return &d, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return Ptr(ns.String)
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
