package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Defaults applied to manually entered devices under ManualAddConnected.
const (
	ManualSignalStrength = 85
	ManualSensorAccuracy = 95
)

// manualBandwidth is the usage quad of a freshly added connected device.
var manualBandwidth = Bandwidth{Upload: 1, Download: 5, Used: 0, Limit: 500}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the scan candidate pool and the canonical list of devices
// known to the user. It wraps a Repository with an in-memory cache.
//
// The cache is populated by RefreshCache and kept in sync by every write.
// All public methods are safe for concurrent use.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
	policy  ManualAddPolicy
	now     func() time.Time
}

// NewRegistry creates a registry over repo with the ManualAddConnected
// policy.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
		policy: ManualAddConnected,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetManualAddPolicy selects the state given to manually added devices.
func (r *Registry) SetManualAddPolicy(p ManualAddPolicy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	r.cacheMu.Lock()
	r.policy = p
	r.cacheMu.Unlock()
	return nil
}

// RefreshCache reloads all devices from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// ListCandidates returns the devices a scan can discover, in pool order.
func (r *Registry) ListCandidates() []Device {
	return Candidates(r.now())
}

// AddManualDevice creates a known device from user entry.
//
// identifier is a MAC or IP address and lands in the matching field. Under
// ManualAddConnected the device is connected at once with default telemetry
// (no handshake); under ManualAddDisconnected it carries no telemetry.
func (r *Registry) AddManualDevice(ctx context.Context, name string, category Category, identifier string) (*Device, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	kind, normalised, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	policy := r.policy
	r.cacheMu.RUnlock()

	d := &Device{
		ID:           GenerateID(),
		Name:         strings.TrimSpace(name),
		Category:     category,
		Capabilities: []string{},
	}
	switch kind {
	case IdentifierMAC:
		d.MACAddress = normalised
	case IdentifierIP:
		d.IPAddress = Ptr(normalised)
	}

	if policy == ManualAddConnected {
		d.Status = StatusConnected
		d.SignalStrength = ManualSignalStrength
		d.SensorAccuracy = ManualSensorAccuracy
		d.Bandwidth = manualBandwidth
		d.HealthStatus = HealthGood
		d.Capabilities = []string{"Basic"}
		d.LastConnected = r.now()
	} else {
		d.Status = StatusDisconnected
	}

	if err := ValidateDevice(d); err != nil {
		return nil, err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device added", "id", d.ID, "name", d.Name, "status", d.Status)
	return d, nil
}

// GetDevice retrieves a device by ID. Returns ErrDeviceNotFound if absent.
// The returned device is a deep copy.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices returns every known device, newest first.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.Filter(ctx, "", CategoryAll)
}

// Filter returns known devices whose name or category contains query
// (case-insensitive), restricted to category unless it is empty or
// CategoryAll. Results are newest first, then by name.
func (r *Registry) Filter(_ context.Context, query string, category Category) ([]Device, error) {
	if category != "" && category != CategoryAll {
		if err := ValidateCategory(category); err != nil {
			return nil, err
		}
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if category != "" && category != CategoryAll && d.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(d.Name), needle) &&
			!strings.Contains(strings.ToLower(string(d.Category)), needle) {
			continue
		}
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return devices, nil
}

// SaveDevice validates and stores a device, replacing any stored device
// with the same ID. Used to merge scan results and connection outcomes
// into the known list.
func (r *Registry) SaveDevice(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	r.cacheMu.RLock()
	if existing, ok := r.cache[device.ID]; ok && device.CreatedAt.IsZero() {
		device.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.Upsert(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("device saved", "id", device.ID, "status", device.Status)
	return nil
}

// RemoveDevice deletes a device from the known list.
// Returns ErrDeviceNotFound if it does not exist.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device removed", "id", id)
	return nil
}

// SetConnectionStatus updates the status of a known device. Connecting a
// device also stamps its last-connected time.
func (r *Registry) SetConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	now := r.now()
	if err := r.repo.UpdateStatus(ctx, id, status, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Status = status
		if status == StatusConnected {
			updated.LastConnected = now
		}
		updated.UpdatedAt = now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device status updated", "id", id, "status", status)
	return nil
}

// ResetConnections marks every device stored as connected or connecting
// as disconnected. Run at startup: a fresh simulator holds no connection,
// so such states are left over from a previous run. Returns how many
// devices were reset.
func (r *Registry) ResetConnections(ctx context.Context) (int, error) {
	r.cacheMu.RLock()
	var stale []string
	for id, d := range r.cache {
		if d.Status == StatusConnected || d.Status == StatusConnecting {
			stale = append(stale, id)
		}
	}
	r.cacheMu.RUnlock()

	for i, id := range stale {
		if err := r.SetConnectionStatus(ctx, id, StatusDisconnected); err != nil {
			return i, fmt.Errorf("resetting %s: %w", id, err)
		}
	}
	if len(stale) > 0 {
		r.logger.Info("stale connections reset", "count", len(stale))
	}
	return len(stale), nil
}

// GetStats summarises the known list. AverageAccuracy is the rounded mean
// sensor accuracy over all devices, 0 when the list is empty.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{Total: len(r.cache)}
	sum := 0
	for _, d := range r.cache {
		switch d.Status {
		case StatusConnected:
			stats.Connected++
		case StatusDisconnected:
			stats.Disconnected++
		}
		sum += d.SensorAccuracy
	}
	if stats.Total > 0 {
		stats.AverageAccuracy = int(math.Round(float64(sum) / float64(stats.Total)))
	}
	return stats
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// SeedDemoDevices inserts the demo known list, skipping IDs that already
// exist. Returns how many devices were added.
func (r *Registry) SeedDemoDevices(ctx context.Context) (int, error) {
	added := 0
	for _, d := range DemoDevices(r.now()) {
		r.cacheMu.RLock()
		_, exists := r.cache[d.ID]
		r.cacheMu.RUnlock()
		if exists {
			continue
		}

		if err := r.repo.Create(ctx, &d); err != nil {
			if errors.Is(err, ErrDeviceExists) {
				continue
			}
			return added, fmt.Errorf("seeding %s: %w", d.ID, err)
		}
		r.cacheMu.Lock()
		r.cache[d.ID] = d.DeepCopy()
		r.cacheMu.Unlock()
		added++
	}

	r.logger.Info("demo devices seeded", "count", added)
	return added, nil
}
