package connection

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/avclink-core/internal/device"
)

// Simulator runs the scan / connect / monitor lifecycle.
//
// All state is guarded by mu. Observers (listeners, notifier, telemetry
// sink) are invoked after mu is released, serialised by dispatchMu so they
// see changes in the order they were applied.
//
// Thread Safety: all public methods are safe for concurrent use.
type Simulator struct {
	mu         sync.Mutex
	dispatchMu sync.Mutex

	opts       Options
	candidates CandidateSource
	rng        *rand.Rand
	logger     Logger
	notifier   Notifier
	sink       TelemetrySink
	listeners  []Listener
	closed     bool

	// Scan working set.
	scanning   bool
	scanGen    uint64
	scanTimers []*time.Timer
	scanned    []device.Device

	// Connection working set. connGen advances whenever the pending attempt
	// or the connected device is superseded.
	connGen   uint64
	attempt   *Attempt
	handshake *time.Timer
	connected *device.Device
	monitor   *time.Timer
	signal    int
	battery   int
	latency   int
}

// New creates a Simulator drawing scan results from candidates.
func New(candidates CandidateSource, opts Options) *Simulator {
	opts = opts.normalise()
	seed := uint64(opts.Seed) //nolint:gosec // seed bits only
	if opts.Seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // seed bits only
	}
	return &Simulator{
		opts:       opts,
		candidates: candidates,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // simulated telemetry, not security
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the simulator.
func (s *Simulator) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// SetNotifier sets the sink for connect/disconnect/failure notifications.
func (s *Simulator) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// SetTelemetrySink sets the receiver of monitor samples.
func (s *Simulator) SetTelemetrySink(sink TelemetrySink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// AddListener registers l for every subsequent state change.
func (s *Simulator) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// outbox collects what a locked section wants to tell observers.
type outbox struct {
	events    []Event
	notes     []Notification
	telemetry *Telemetry
	resolved  []resolution
}

type resolution struct {
	attempt *Attempt
	err     error
}

func (o *outbox) event(s *Simulator, t EventType, d *device.Device) {
	o.events = append(o.events, Event{Type: t, Snapshot: s.snapshotLocked(), Device: d.DeepCopy()})
}

func (o *outbox) resolve(a *Attempt, err error) {
	o.resolved = append(o.resolved, resolution{attempt: a, err: err})
}

// unlockAndDispatch releases mu and delivers out. Attempts resolve last so
// a caller blocked in Wait observes every side effect of the outcome.
func (s *Simulator) unlockAndDispatch(out *outbox) {
	listeners := s.listeners
	notifier := s.notifier
	sink := s.sink

	s.dispatchMu.Lock()
	s.mu.Unlock()
	defer s.dispatchMu.Unlock()

	for _, ev := range out.events {
		for _, l := range listeners {
			l(ev)
		}
	}
	if notifier != nil {
		for _, n := range out.notes {
			notifier.Notify(n)
		}
	}
	if sink != nil && out.telemetry != nil {
		sink.RecordTelemetry(*out.telemetry)
	}
	for _, r := range out.resolved {
		r.attempt.resolve(r.err)
	}
}

// StartScan clears the discovered set and schedules one discovery per
// candidate plus the scan ceiling. A scan already in progress is restarted.
func (s *Simulator) StartScan() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.cancelScanLocked()
	s.scanning = true
	s.scanned = nil
	gen := s.scanGen

	candidates := s.candidates.ListCandidates()
	for i := range candidates {
		d := candidates[i]
		delay := s.opts.ScanStep*time.Duration(i+1) + s.jitterLocked()
		s.scanTimers = append(s.scanTimers, time.AfterFunc(delay, func() { s.discover(gen, d) }))
	}
	s.scanTimers = append(s.scanTimers, time.AfterFunc(s.opts.ScanTimeout, func() { s.scanDeadline(gen) }))

	s.logger.Info("scan started", "candidates", len(candidates), "timeout", s.opts.ScanTimeout)

	var out outbox
	out.event(s, EventScanStarted, nil)
	s.unlockAndDispatch(&out)
	return nil
}

// StopScan ends the scan and cancels every pending discovery. Devices
// already discovered stay in the snapshot. No-op when not scanning.
func (s *Simulator) StopScan() {
	s.mu.Lock()
	if !s.scanning {
		s.mu.Unlock()
		return
	}
	s.cancelScanLocked()
	s.logger.Info("scan stopped", "discovered", len(s.scanned))

	var out outbox
	out.event(s, EventScanStopped, nil)
	s.unlockAndDispatch(&out)
}

func (s *Simulator) jitterLocked() time.Duration {
	if s.opts.ScanJitter <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int64N(int64(s.opts.ScanJitter)))
}

// cancelScanLocked stops scan timers and invalidates any that already fired.
func (s *Simulator) cancelScanLocked() {
	for _, t := range s.scanTimers {
		t.Stop()
	}
	s.scanTimers = nil
	s.scanGen++
	s.scanning = false
}

func (s *Simulator) discover(gen uint64, d device.Device) {
	s.mu.Lock()
	if gen != s.scanGen || !s.scanning {
		s.mu.Unlock()
		return
	}
	for i := range s.scanned {
		if s.scanned[i].ID == d.ID {
			s.mu.Unlock()
			return
		}
	}
	s.scanned = append(s.scanned, *d.DeepCopy())
	s.logger.Debug("device discovered", "id", d.ID, "name", d.Name)

	var out outbox
	out.event(s, EventDeviceDiscovered, &d)
	s.unlockAndDispatch(&out)
}

func (s *Simulator) scanDeadline(gen uint64) {
	s.mu.Lock()
	if gen != s.scanGen || !s.scanning {
		s.mu.Unlock()
		return
	}
	s.cancelScanLocked()
	s.logger.Info("scan timed out", "discovered", len(s.scanned))

	var out outbox
	out.event(s, EventScanStopped, nil)
	s.unlockAndDispatch(&out)
}

// Connect begins pairing with target and returns a handle on the attempt.
//
// Connect ends any scan, cancels a pending attempt and disconnects the
// currently connected device, in that order. After HandshakeDelay the
// attempt resolves: on success target becomes the connected device with
// telemetry seeded from its nominal signal and battery.
//
// Returns ErrClosed after Close, ErrInvalidTarget for a device without an ID.
func (s *Simulator) Connect(target device.Device) (*Attempt, error) {
	if target.ID == "" {
		return nil, ErrInvalidTarget
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	var out outbox
	if s.scanning {
		s.cancelScanLocked()
		out.event(s, EventScanStopped, nil)
	}
	s.abortAttemptLocked(&out, ErrCanceled)
	s.teardownLocked(&out)

	s.connGen++
	gen := s.connGen
	attempt := newAttempt(s, target)
	s.attempt = attempt
	s.handshake = time.AfterFunc(s.opts.HandshakeDelay, func() { s.completeHandshake(gen, attempt) })

	s.logger.Info("connecting", "id", target.ID, "name", target.Name)
	connecting := attempt.target
	connecting.Status = device.StatusConnecting
	out.event(s, EventConnecting, &connecting)
	s.unlockAndDispatch(&out)
	return attempt, nil
}

func (s *Simulator) completeHandshake(gen uint64, a *Attempt) {
	s.mu.Lock()
	if gen != s.connGen || s.attempt != a {
		s.mu.Unlock()
		return
	}
	s.attempt = nil
	s.handshake = nil

	var out outbox
	target := *a.target.DeepCopy()

	if s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate {
		target.Status = device.StatusError
		s.logger.Warn("connection failed", "id", target.ID, "name", target.Name)
		out.event(s, EventConnectFailed, &target)
		out.notes = append(out.notes, Notification{
			Title:       "Connection Failed",
			Description: "Could not connect to " + target.Name,
			Variant:     VariantDestructive,
		})
		out.resolve(a, ErrConnectionFailed)
		s.unlockAndDispatch(&out)
		return
	}

	target.LastConnected = s.opts.Now()
	s.occupyLocked(gen, &target)

	s.logger.Info("device connected", "id", target.ID, "name", target.Name, "signal", s.signal)
	out.event(s, EventConnected, &target)
	out.notes = append(out.notes, Notification{
		Title:       "Device Connected",
		Description: "Successfully connected to " + target.Name,
		Variant:     VariantDefault,
	})
	out.resolve(a, nil)
	s.unlockAndDispatch(&out)
}

// occupyLocked makes target the connected device, seeds telemetry from its
// nominal values and starts the monitor under gen.
func (s *Simulator) occupyLocked(gen uint64, target *device.Device) {
	target.Status = device.StatusConnected
	s.connected = target
	s.signal = target.SignalStrength
	if s.signal <= 0 {
		s.signal = FallbackSignal
	}
	s.battery = target.Battery(0)
	if s.battery <= 0 {
		s.battery = FallbackBattery
	}
	s.latency = HandshakeLatencyMs
	s.monitor = time.AfterFunc(s.opts.MonitorInterval, func() { s.tick(gen) })
}

// Adopt makes d the connected device at once, without a handshake. It is
// how a device entered by hand in the connected state takes the single
// connected slot: a pending attempt is canceled and the current device is
// disconnected first. A running scan is left alone.
//
// Emits EventConnected without a notification. Returns ErrClosed after
// Close, ErrInvalidTarget for a device without an ID.
func (s *Simulator) Adopt(d device.Device) error {
	if d.ID == "" {
		return ErrInvalidTarget
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	var out outbox
	s.abortAttemptLocked(&out, ErrCanceled)
	s.teardownLocked(&out)

	s.connGen++
	target := *d.DeepCopy()
	if target.LastConnected.IsZero() {
		target.LastConnected = s.opts.Now()
	}
	s.occupyLocked(s.connGen, &target)

	s.logger.Info("device adopted", "id", target.ID, "name", target.Name, "signal", s.signal)
	out.event(s, EventConnected, &target)
	s.unlockAndDispatch(&out)
	return nil
}

func (s *Simulator) cancelAttempt(a *Attempt) {
	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		return
	}
	var out outbox
	s.abortAttemptLocked(&out, ErrCanceled)
	s.unlockAndDispatch(&out)
}

// abortAttemptLocked resolves the pending attempt, if any, with err.
func (s *Simulator) abortAttemptLocked(out *outbox, err error) {
	if s.attempt == nil {
		return
	}
	a := s.attempt
	if s.handshake != nil {
		s.handshake.Stop()
		s.handshake = nil
	}
	s.attempt = nil
	s.connGen++

	s.logger.Info("connection attempt canceled", "id", a.target.ID)
	target := *a.target.DeepCopy()
	target.Status = device.StatusDisconnected
	out.event(s, EventConnectCanceled, &target)
	out.resolve(a, err)
}

// teardownLocked drops the connected device, if any, and zeroes telemetry.
func (s *Simulator) teardownLocked(out *outbox) {
	if s.monitor != nil {
		s.monitor.Stop()
		s.monitor = nil
	}
	s.signal, s.battery, s.latency = 0, 0, 0
	if s.connected == nil {
		return
	}
	prev := s.connected
	s.connected = nil
	s.connGen++

	prev.Status = device.StatusDisconnected
	s.logger.Info("device disconnected", "id", prev.ID, "name", prev.Name)
	out.event(s, EventDisconnected, prev)
	out.notes = append(out.notes, Notification{
		Title:       "Device Disconnected",
		Description: "Disconnected from " + prev.Name,
		Variant:     VariantDestructive,
	})
}

// Disconnect cancels a pending attempt, drops the connected device and
// zeroes telemetry. Calling it again has no further effect.
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	var out outbox
	s.abortAttemptLocked(&out, ErrCanceled)
	s.teardownLocked(&out)
	s.unlockAndDispatch(&out)
}

// tick applies one monitor step and re-arms the monitor.
func (s *Simulator) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.connGen || s.connected == nil {
		s.mu.Unlock()
		return
	}
	s.stepTelemetryLocked()
	s.monitor = time.AfterFunc(s.opts.MonitorInterval, func() { s.tick(gen) })

	var out outbox
	out.telemetry = &Telemetry{
		DeviceID:       s.connected.ID,
		SignalStrength: s.signal,
		BatteryLevel:   s.battery,
		LatencyMs:      s.latency,
		Timestamp:      s.opts.Now(),
	}
	out.event(s, EventTelemetry, s.connected)
	s.unlockAndDispatch(&out)
}

func (s *Simulator) stepTelemetryLocked() {
	delta := s.rng.IntN(2*maxSignalDelta+1) - maxSignalDelta
	s.signal = min(max(s.signal+delta, SignalMin), SignalMax)
	if s.rng.Float64() < batteryDrainChance {
		s.battery = max(s.battery-1, BatteryMin)
	}
	s.latency = LatencyMinMs + s.rng.IntN(LatencyMaxMs-LatencyMinMs+1)
}

// Snapshot returns the current observable state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Simulator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Scanning:       s.scanning,
		Connecting:     s.attempt != nil,
		Connected:      s.connected != nil,
		ScannedDevices: make([]device.Device, 0, len(s.scanned)),
		SignalStrength: s.signal,
		BatteryLevel:   s.battery,
		LatencyMs:      s.latency,
	}
	for i := range s.scanned {
		snap.ScannedDevices = append(snap.ScannedDevices, *s.scanned[i].DeepCopy())
	}
	if s.attempt != nil {
		d := s.attempt.target.DeepCopy()
		d.Status = device.StatusConnecting
		snap.ConnectingDevice = d
	}
	snap.ConnectedDevice = s.connected.DeepCopy()

	switch {
	case snap.Connecting:
		snap.State = StateConnecting
	case snap.Connected:
		snap.State = StateConnected
	case snap.Scanning:
		snap.State = StateScanning
	default:
		snap.State = StateIdle
	}
	return snap
}

// Close cancels all pending work and drops the connection without
// notifying. A pending attempt resolves with ErrClosed. Close is idempotent.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelScanLocked()

	var out outbox
	if a := s.attempt; a != nil {
		if s.handshake != nil {
			s.handshake.Stop()
			s.handshake = nil
		}
		s.attempt = nil
		out.resolve(a, ErrClosed)
	}
	if s.monitor != nil {
		s.monitor.Stop()
		s.monitor = nil
	}
	s.connected = nil
	s.signal, s.battery, s.latency = 0, 0, 0
	s.connGen++

	s.logger.Info("simulator closed")
	s.unlockAndDispatch(&out)
}
