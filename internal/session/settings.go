package session

import (
	"context"
	"errors"
	"strings"

	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
)

// DeviceSettings returns the tuning of a known device, or factory defaults
// if it was never saved.
func (m *Manager) DeviceSettings(ctx context.Context, id string) (device.Settings, error) {
	if _, err := m.registry.GetDevice(ctx, id); err != nil {
		return device.Settings{}, err
	}
	return m.currentSettings(ctx, id)
}

// SaveDeviceSettings stores new tuning for a known device, records the
// changed fields as a config_change event and notifies "Configuration
// Saved". Saving identical values records nothing but still notifies.
func (m *Manager) SaveDeviceSettings(ctx context.Context, id string, s device.Settings) (device.Settings, error) {
	d, err := m.registry.GetDevice(ctx, id)
	if err != nil {
		return device.Settings{}, err
	}
	s.DeviceID = id
	s.UpdatedAt = nil
	if err := device.ValidateSettings(s); err != nil {
		return device.Settings{}, err
	}

	prev, err := m.currentSettings(ctx, id)
	if err != nil {
		return device.Settings{}, err
	}
	if err := m.settings.SaveSettings(ctx, &s); err != nil {
		return device.Settings{}, err
	}

	if changes := s.Changes(prev); len(changes) > 0 {
		m.record(ctx, id, history.EventConfigChange, "Tuned "+d.Name+": "+strings.Join(changes, ", "))
	}
	m.publishJSON(m.topics.DeviceConfig(id), s, true)
	m.Notify(connection.Notification{
		Title:       "Configuration Saved",
		Description: "Settings for " + d.Name + " have been updated.",
		Variant:     connection.VariantDefault,
	})
	return s, nil
}

// ResetDeviceSettings reverts a known device to factory tuning, records
// the reset and notifies "Settings Reset".
func (m *Manager) ResetDeviceSettings(ctx context.Context, id string) (device.Settings, error) {
	d, err := m.registry.GetDevice(ctx, id)
	if err != nil {
		return device.Settings{}, err
	}
	if err := m.settings.DeleteSettings(ctx, id); err != nil {
		return device.Settings{}, err
	}

	defaults := device.DefaultSettings(id)
	m.record(ctx, id, history.EventConfigChange, "Reset "+d.Name+" to factory defaults")
	m.publishJSON(m.topics.DeviceConfig(id), defaults, true)
	m.Notify(connection.Notification{
		Title:       "Settings Reset",
		Description: "Configuration reverted to factory defaults.",
		Variant:     connection.VariantDefault,
	})
	return defaults, nil
}

func (m *Manager) currentSettings(ctx context.Context, id string) (device.Settings, error) {
	s, err := m.settings.GetSettings(ctx, id)
	if errors.Is(err, device.ErrSettingsNotFound) {
		return device.DefaultSettings(id), nil
	}
	if err != nil {
		return device.Settings{}, err
	}
	return *s, nil
}
