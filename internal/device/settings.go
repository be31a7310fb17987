package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Factory tuning applied to a device that has never been configured.
const (
	DefaultSignalTuning    = 75
	DefaultHarmonicGain    = 40
	DefaultNeuralSmoothing = true
	DefaultAdaptiveNoise   = true
	DefaultVocalClarity    = 85

	// MaxHarmonicGain is the harmonic gain ceiling in dB.
	MaxHarmonicGain = 60
)

// Settings is the tuning of one device. Percentages run 0 to 100.
// UpdatedAt is nil while the device still runs on factory defaults.
type Settings struct {
	DeviceID        string     `json:"device_id"`
	SignalTuning    int        `json:"signal_tuning"`
	HarmonicGain    int        `json:"harmonic_gain"`
	NeuralSmoothing bool       `json:"neural_smoothing"`
	AdaptiveNoise   bool       `json:"adaptive_noise"`
	VocalClarity    int        `json:"vocal_clarity"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// DefaultSettings returns factory tuning for deviceID.
func DefaultSettings(deviceID string) Settings {
	return Settings{
		DeviceID:        deviceID,
		SignalTuning:    DefaultSignalTuning,
		HarmonicGain:    DefaultHarmonicGain,
		NeuralSmoothing: DefaultNeuralSmoothing,
		AdaptiveNoise:   DefaultAdaptiveNoise,
		VocalClarity:    DefaultVocalClarity,
	}
}

// IsDefault reports whether the device has never been saved.
func (s Settings) IsDefault() bool {
	return s.UpdatedAt == nil
}

// ValidateSettings checks ranges before a save.
func ValidateSettings(s Settings) error {
	switch {
	case s.DeviceID == "":
		return fmt.Errorf("%w: device id is required", ErrInvalidSettings)
	case s.SignalTuning < 0 || s.SignalTuning > 100:
		return fmt.Errorf("%w: signal_tuning %d outside 0-100", ErrInvalidSettings, s.SignalTuning)
	case s.HarmonicGain < 0 || s.HarmonicGain > MaxHarmonicGain:
		return fmt.Errorf("%w: harmonic_gain %d outside 0-%d", ErrInvalidSettings, s.HarmonicGain, MaxHarmonicGain)
	case s.VocalClarity < 0 || s.VocalClarity > 100:
		return fmt.Errorf("%w: vocal_clarity %d outside 0-100", ErrInvalidSettings, s.VocalClarity)
	}
	return nil
}

// Changes lists the fields that differ from prev as "name=value", in
// field order.
func (s Settings) Changes(prev Settings) []string {
	var out []string
	add := func(name string, changed bool, value string) {
		if changed {
			out = append(out, name+"="+value)
		}
	}
	add("signal_tuning", s.SignalTuning != prev.SignalTuning, strconv.Itoa(s.SignalTuning))
	add("harmonic_gain", s.HarmonicGain != prev.HarmonicGain, strconv.Itoa(s.HarmonicGain))
	add("neural_smoothing", s.NeuralSmoothing != prev.NeuralSmoothing, strconv.FormatBool(s.NeuralSmoothing))
	add("adaptive_noise", s.AdaptiveNoise != prev.AdaptiveNoise, strconv.FormatBool(s.AdaptiveNoise))
	add("vocal_clarity", s.VocalClarity != prev.VocalClarity, strconv.Itoa(s.VocalClarity))
	return out
}

// SettingsStore persists device tuning.
type SettingsStore interface {
	// GetSettings returns ErrSettingsNotFound if the device was never saved.
	GetSettings(ctx context.Context, deviceID string) (*Settings, error)

	// SaveSettings inserts or replaces the row and stamps UpdatedAt.
	// Returns ErrDeviceNotFound if the device is not stored.
	SaveSettings(ctx context.Context, s *Settings) error

	// DeleteSettings reverts a device to defaults. Deleting settings that
	// do not exist is not an error.
	DeleteSettings(ctx context.Context, deviceID string) error
}

// SQLiteSettingsStore implements SettingsStore. Rows are removed with
// their device by the foreign key.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a settings store on an open connection.
func NewSQLiteSettingsStore(db *sql.DB) *SQLiteSettingsStore {
	return &SQLiteSettingsStore{db: db}
}

// GetSettings loads the saved tuning of a device.
func (r *SQLiteSettingsStore) GetSettings(ctx context.Context, deviceID string) (*Settings, error) {
	s := Settings{DeviceID: deviceID}
	var smoothing, adaptive int
	var updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT signal_tuning, harmonic_gain, neural_smoothing, adaptive_noise, vocal_clarity, updated_at
		FROM device_settings WHERE device_id = ?`, deviceID,
	).Scan(&s.SignalTuning, &s.HarmonicGain, &smoothing, &adaptive, &s.VocalClarity, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("querying device settings: %w", err)
	}
	s.NeuralSmoothing = smoothing != 0
	s.AdaptiveNoise = adaptive != 0
	at, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing settings updated_at: %w", err)
	}
	s.UpdatedAt = &at
	return &s, nil
}

// SaveSettings upserts the tuning of a device.
func (r *SQLiteSettingsStore) SaveSettings(ctx context.Context, s *Settings) error {
	if err := ValidateSettings(*s); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_settings
			(device_id, signal_tuning, harmonic_gain, neural_smoothing, adaptive_noise, vocal_clarity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			signal_tuning = excluded.signal_tuning,
			harmonic_gain = excluded.harmonic_gain,
			neural_smoothing = excluded.neural_smoothing,
			adaptive_noise = excluded.adaptive_noise,
			vocal_clarity = excluded.vocal_clarity,
			updated_at = excluded.updated_at`,
		s.DeviceID, s.SignalTuning, s.HarmonicGain, boolInt(s.NeuralSmoothing), boolInt(s.AdaptiveNoise),
		s.VocalClarity, now.Format(time.RFC3339))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("saving device settings: %w", err)
	}
	s.UpdatedAt = &now
	return nil
}

// DeleteSettings removes the saved tuning of a device.
func (r *SQLiteSettingsStore) DeleteSettings(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_settings WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting device settings: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
