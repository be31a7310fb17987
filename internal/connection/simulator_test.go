package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/avclink-core/internal/device"
)

type staticCandidates []device.Device

func (c staticCandidates) ListCandidates() []device.Device {
	out := make([]device.Device, len(c))
	copy(out, c)
	return out
}

// recorder captures everything the simulator reports.
type recorder struct {
	mu        sync.Mutex
	events    []Event
	notes     []Notification
	telemetry []Telemetry
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) RecordTelemetry(t Telemetry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = append(r.telemetry, t)
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recorder) samples() []Telemetry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Telemetry(nil), r.telemetry...)
}

func fastOptions() Options {
	return Options{
		Seed:            42,
		ScanStep:        5 * time.Millisecond,
		ScanJitter:      2 * time.Millisecond,
		ScanTimeout:     500 * time.Millisecond,
		HandshakeDelay:  20 * time.Millisecond,
		MonitorInterval: 5 * time.Millisecond,
	}
}

func newTestSimulator(t *testing.T, opts Options) (*Simulator, *recorder) {
	t.Helper()
	sim := New(staticCandidates(device.Candidates(time.Now())), opts)
	rec := &recorder{}
	sim.AddListener(rec.listen)
	sim.SetNotifier(rec)
	sim.SetTelemetrySink(rec)
	t.Cleanup(sim.Close)
	return sim, rec
}

func candidate(t *testing.T, id string) device.Device {
	t.Helper()
	for _, d := range device.Candidates(time.Now()) {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("no candidate %s", id)
	return device.Device{}
}

func connectAndWait(t *testing.T, sim *Simulator, d device.Device) {
	t.Helper()
	attempt, err := sim.Connect(d)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, attempt.Wait(ctx))
}

func TestConnect_SingleConnectedDevice(t *testing.T) {
	sim, rec := newTestSimulator(t, fastOptions())

	connectAndWait(t, sim, candidate(t, "avc-beryl-01"))
	connectAndWait(t, sim, candidate(t, "avc-pro-02"))

	snap := sim.Snapshot()
	require.NotNil(t, snap.ConnectedDevice)
	assert.Equal(t, "avc-pro-02", snap.ConnectedDevice.ID)
	assert.Equal(t, device.StatusConnected, snap.ConnectedDevice.Status)
	assert.Equal(t, StateConnected, snap.State)
	assert.False(t, snap.Connecting)

	// The first device was torn down before the second connected.
	assert.Equal(t, 2, rec.count(EventConnected))
	assert.Equal(t, 1, rec.count(EventDisconnected))

	titles := make([]string, 0)
	for _, n := range rec.notifications() {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"Device Connected", "Device Disconnected", "Device Connected"}, titles)
}

func TestConnect_HandshakePending(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = 100 * time.Millisecond
	opts.MonitorInterval = time.Hour
	sim, _ := newTestSimulator(t, opts)

	target := candidate(t, "avc-beryl-01")
	require.Equal(t, 88, target.SignalStrength)

	attempt, err := sim.Connect(target)
	require.NoError(t, err)

	snap := sim.Snapshot()
	assert.True(t, snap.Connecting)
	assert.Nil(t, snap.ConnectedDevice)
	assert.Equal(t, StateConnecting, snap.State)
	require.NotNil(t, snap.ConnectingDevice)
	assert.Equal(t, device.StatusConnecting, snap.ConnectingDevice.Status)
	assert.NoError(t, attempt.Err(), "pending attempt has no outcome")

	require.NoError(t, attempt.Wait(context.Background()))

	snap = sim.Snapshot()
	assert.False(t, snap.Connecting)
	require.NotNil(t, snap.ConnectedDevice)
	assert.Equal(t, 88, snap.ConnectedDevice.SignalStrength)
	assert.Equal(t, 88, snap.SignalStrength)
	assert.Equal(t, 92, snap.BatteryLevel)
	assert.Equal(t, HandshakeLatencyMs, snap.LatencyMs)
	assert.False(t, snap.ConnectedDevice.LastConnected.IsZero())
}

func TestConnect_FallbackTelemetry(t *testing.T) {
	opts := fastOptions()
	opts.MonitorInterval = time.Hour
	sim, _ := newTestSimulator(t, opts)

	bare := device.Device{ID: "dev-bare", Name: "Bare", Category: device.CategoryIoT}
	connectAndWait(t, sim, bare)

	snap := sim.Snapshot()
	assert.Equal(t, FallbackSignal, snap.SignalStrength)
	assert.Equal(t, FallbackBattery, snap.BatteryLevel)
}

func TestAdopt_TakesSingleSlot(t *testing.T) {
	opts := fastOptions()
	opts.MonitorInterval = time.Hour
	sim, rec := newTestSimulator(t, opts)
	connectAndWait(t, sim, candidate(t, "avc-beryl-01"))

	manual := device.Device{
		ID:             "dev-manual",
		Name:           "Lab Mask",
		Category:       device.CategoryAVCMask,
		SignalStrength: 85,
		SensorAccuracy: 95,
	}
	require.NoError(t, sim.Adopt(manual))

	snap := sim.Snapshot()
	require.NotNil(t, snap.ConnectedDevice)
	assert.Equal(t, "dev-manual", snap.ConnectedDevice.ID)
	assert.Equal(t, device.StatusConnected, snap.ConnectedDevice.Status)
	assert.False(t, snap.ConnectedDevice.LastConnected.IsZero())
	assert.Equal(t, 85, snap.SignalStrength)
	assert.Equal(t, FallbackBattery, snap.BatteryLevel)
	assert.Equal(t, HandshakeLatencyMs, snap.LatencyMs)

	// The displaced device was torn down; adoption itself is silent.
	assert.Equal(t, 1, rec.count(EventDisconnected))
	assert.Equal(t, 2, rec.count(EventConnected))
	titles := make([]string, 0)
	for _, n := range rec.notifications() {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"Device Connected", "Device Disconnected"}, titles)

	sim.Disconnect()
	assert.Nil(t, sim.Snapshot().ConnectedDevice)
	assert.Equal(t, 2, rec.count(EventDisconnected))
}

func TestAdopt_CancelsPendingAttempt(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = time.Hour
	sim, _ := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-pro-02"))
	require.NoError(t, err)

	require.NoError(t, sim.Adopt(device.Device{ID: "dev-manual", Name: "Lab Mask"}))
	assert.ErrorIs(t, attempt.Err(), ErrCanceled)
	assert.Equal(t, StateConnected, sim.Snapshot().State)
}

func TestAdopt_Errors(t *testing.T) {
	sim, _ := newTestSimulator(t, fastOptions())
	assert.ErrorIs(t, sim.Adopt(device.Device{}), ErrInvalidTarget)

	sim.Close()
	assert.ErrorIs(t, sim.Adopt(device.Device{ID: "dev-x"}), ErrClosed)
}

func TestDisconnect_ClearsState(t *testing.T) {
	sim, rec := newTestSimulator(t, fastOptions())
	connectAndWait(t, sim, candidate(t, "avc-audio-03"))

	sim.Disconnect()

	snap := sim.Snapshot()
	assert.Nil(t, snap.ConnectedDevice)
	assert.Zero(t, snap.SignalStrength)
	assert.Zero(t, snap.BatteryLevel)
	assert.Zero(t, snap.LatencyMs)
	assert.Equal(t, StateIdle, snap.State)

	notes := rec.notifications()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, "Device Disconnected", last.Title)
	assert.Equal(t, "Disconnected from AVC Audio Hub", last.Description)
	assert.Equal(t, VariantDestructive, last.Variant)
}

func TestDisconnect_Idempotent(t *testing.T) {
	sim, rec := newTestSimulator(t, fastOptions())
	connectAndWait(t, sim, candidate(t, "avc-beryl-01"))

	sim.Disconnect()
	once := sim.Snapshot()
	events := rec.count(EventDisconnected)
	notes := len(rec.notifications())

	sim.Disconnect()
	assert.Equal(t, once, sim.Snapshot())
	assert.Equal(t, events, rec.count(EventDisconnected))
	assert.Len(t, rec.notifications(), notes)

	// Disconnecting with nothing connected notifies nobody.
	fresh, freshRec := newTestSimulator(t, fastOptions())
	fresh.Disconnect()
	assert.Empty(t, freshRec.notifications())
}

func TestMonitor_TelemetryStaysInBounds(t *testing.T) {
	sim := New(staticCandidates(nil), fastOptions())
	defer sim.Close()

	for _, start := range []int{SignalMin, 1, 50, 99, SignalMax} {
		lowSignal, highSignal := start, start
		lowBattery := 1
		lowLatency, highLatency := LatencyMaxMs, LatencyMinMs

		sim.mu.Lock()
		sim.signal, sim.battery = start, 1
		for range 10_000 {
			sim.stepTelemetryLocked()
			lowSignal, highSignal = min(lowSignal, sim.signal), max(highSignal, sim.signal)
			lowBattery = min(lowBattery, sim.battery)
			lowLatency, highLatency = min(lowLatency, sim.latency), max(highLatency, sim.latency)
		}
		sim.mu.Unlock()

		assert.GreaterOrEqual(t, lowSignal, SignalMin, "start %d", start)
		assert.LessOrEqual(t, highSignal, SignalMax, "start %d", start)
		assert.GreaterOrEqual(t, lowBattery, BatteryMin, "start %d", start)
		assert.GreaterOrEqual(t, lowLatency, LatencyMinMs, "start %d", start)
		assert.LessOrEqual(t, highLatency, LatencyMaxMs, "start %d", start)
	}
}

func TestMonitor_SeededRunsRepeat(t *testing.T) {
	run := func() []int {
		sim := New(staticCandidates(nil), Options{Seed: 7})
		defer sim.Close()
		sim.mu.Lock()
		defer sim.mu.Unlock()
		sim.signal, sim.battery = 50, 50
		var out []int
		for range 200 {
			sim.stepTelemetryLocked()
			out = append(out, sim.signal, sim.battery, sim.latency)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestMonitor_FeedsTelemetrySink(t *testing.T) {
	sim, rec := newTestSimulator(t, fastOptions())
	connectAndWait(t, sim, candidate(t, "avc-pro-02"))

	require.Eventually(t, func() bool { return len(rec.samples()) >= 3 }, time.Second, 5*time.Millisecond)

	for _, s := range rec.samples() {
		assert.Equal(t, "avc-pro-02", s.DeviceID)
		assert.False(t, s.Timestamp.IsZero())
	}
	assert.GreaterOrEqual(t, rec.count(EventTelemetry), 3)

	// Ticks stop once disconnected.
	sim.Disconnect()
	n := len(rec.samples())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.samples(), n)
}

func TestScan_DiscoversAllCandidates(t *testing.T) {
	sim, rec := newTestSimulator(t, fastOptions())

	require.NoError(t, sim.StartScan())
	assert.True(t, sim.Snapshot().Scanning)

	require.Eventually(t, func() bool {
		return len(sim.Snapshot().ScannedDevices) == 4
	}, fastOptions().ScanTimeout, 5*time.Millisecond)

	assert.Equal(t, 4, rec.count(EventDeviceDiscovered))
	ids := map[string]bool{}
	for _, d := range sim.Snapshot().ScannedDevices {
		ids[d.ID] = true
	}
	assert.Len(t, ids, 4, "discoveries are unique")
}

func TestScan_CeilingEndsScan(t *testing.T) {
	opts := fastOptions()
	opts.ScanStep = time.Hour
	opts.ScanTimeout = 30 * time.Millisecond
	sim, rec := newTestSimulator(t, opts)

	require.NoError(t, sim.StartScan())
	require.Eventually(t, func() bool { return !sim.Snapshot().Scanning }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, rec.count(EventScanStopped))
	assert.Empty(t, sim.Snapshot().ScannedDevices)
}

func TestStopScan_CancelsPendingDiscoveries(t *testing.T) {
	opts := fastOptions()
	opts.ScanStep = 20 * time.Millisecond
	sim, rec := newTestSimulator(t, opts)

	require.NoError(t, sim.StartScan())
	sim.StopScan()

	time.Sleep(150 * time.Millisecond)

	snap := sim.Snapshot()
	assert.False(t, snap.Scanning)
	assert.Empty(t, snap.ScannedDevices)
	assert.Zero(t, rec.count(EventDeviceDiscovered))

	// A second stop is a no-op.
	sim.StopScan()
	assert.Equal(t, 1, rec.count(EventScanStopped))
}

func TestStartScan_RestartClearsResults(t *testing.T) {
	sim, _ := newTestSimulator(t, fastOptions())

	require.NoError(t, sim.StartScan())
	require.Eventually(t, func() bool {
		return len(sim.Snapshot().ScannedDevices) == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sim.StartScan())
	assert.Empty(t, sim.Snapshot().ScannedDevices)
	assert.True(t, sim.Snapshot().Scanning)
}

func TestConnect_EndsScan(t *testing.T) {
	opts := fastOptions()
	opts.ScanStep = 30 * time.Millisecond
	sim, rec := newTestSimulator(t, opts)

	require.NoError(t, sim.StartScan())
	_, err := sim.Connect(candidate(t, "avc-beryl-02"))
	require.NoError(t, err)

	assert.False(t, sim.Snapshot().Scanning)
	assert.Equal(t, 1, rec.count(EventScanStopped))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, rec.count(EventDeviceDiscovered))
}

func TestAttempt_Cancel(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = 40 * time.Millisecond
	sim, rec := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-beryl-01"))
	require.NoError(t, err)

	attempt.Cancel()
	assert.ErrorIs(t, attempt.Wait(context.Background()), ErrCanceled)
	assert.ErrorIs(t, attempt.Err(), ErrCanceled)

	time.Sleep(100 * time.Millisecond)
	snap := sim.Snapshot()
	assert.Nil(t, snap.ConnectedDevice)
	assert.False(t, snap.Connecting)
	assert.Zero(t, rec.count(EventConnected))
	assert.Equal(t, 1, rec.count(EventConnectCanceled))

	// Cancelling a resolved attempt changes nothing.
	attempt.Cancel()
	assert.Equal(t, 1, rec.count(EventConnectCanceled))
}

func TestConnect_SupersedesPendingAttempt(t *testing.T) {
	sim, _ := newTestSimulator(t, fastOptions())

	first, err := sim.Connect(candidate(t, "avc-beryl-01"))
	require.NoError(t, err)
	second, err := sim.Connect(candidate(t, "avc-audio-03"))
	require.NoError(t, err)

	assert.ErrorIs(t, first.Wait(context.Background()), ErrCanceled)
	require.NoError(t, second.Wait(context.Background()))
	assert.Equal(t, "avc-audio-03", sim.Snapshot().ConnectedDevice.ID)
}

func TestDisconnect_CancelsPendingAttempt(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = 50 * time.Millisecond
	sim, rec := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-pro-02"))
	require.NoError(t, err)
	sim.Disconnect()

	assert.ErrorIs(t, attempt.Wait(context.Background()), ErrCanceled)
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, sim.Snapshot().ConnectedDevice)
	assert.Empty(t, rec.notifications())
}

func TestStopScan_LeavesPendingAttempt(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = 50 * time.Millisecond
	sim, _ := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-pro-02"))
	require.NoError(t, err)
	require.NoError(t, sim.StartScan())
	sim.StopScan()

	require.NoError(t, attempt.Wait(context.Background()))
	assert.Equal(t, "avc-pro-02", sim.Snapshot().ConnectedDevice.ID)
}

func TestConnect_FailureRate(t *testing.T) {
	opts := fastOptions()
	opts.FailureRate = 1
	sim, rec := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-beryl-02"))
	require.NoError(t, err)
	assert.ErrorIs(t, attempt.Wait(context.Background()), ErrConnectionFailed)

	snap := sim.Snapshot()
	assert.Nil(t, snap.ConnectedDevice)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 1, rec.count(EventConnectFailed))

	notes := rec.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Connection Failed", notes[0].Title)
	assert.Equal(t, VariantDestructive, notes[0].Variant)
}

func TestConnect_InvalidTarget(t *testing.T) {
	sim, _ := newTestSimulator(t, fastOptions())
	_, err := sim.Connect(device.Device{Name: "No ID"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestAttempt_WaitHonoursContext(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = time.Hour
	sim, _ := newTestSimulator(t, opts)

	attempt, err := sim.Connect(candidate(t, "avc-beryl-01"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, attempt.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, sim.Snapshot().Connecting, "attempt keeps running after Wait gives up")
}

func TestClose(t *testing.T) {
	opts := fastOptions()
	opts.HandshakeDelay = time.Hour
	sim, rec := newTestSimulator(t, opts)

	require.NoError(t, sim.StartScan())
	attempt, err := sim.Connect(candidate(t, "avc-beryl-01"))
	require.NoError(t, err)

	sim.Close()
	assert.ErrorIs(t, attempt.Wait(context.Background()), ErrClosed)

	_, err = sim.Connect(candidate(t, "avc-pro-02"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, sim.StartScan(), ErrClosed)

	snap := sim.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, rec.notifications())

	sim.Close()
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	opts := fastOptions()
	opts.MonitorInterval = time.Hour
	sim, _ := newTestSimulator(t, opts)
	connectAndWait(t, sim, candidate(t, "avc-beryl-01"))

	snap := sim.Snapshot()
	snap.ConnectedDevice.Name = "changed"
	*snap.ConnectedDevice.BatteryLevel = 1

	again := sim.Snapshot()
	assert.Equal(t, "AVC Beryl X1", again.ConnectedDevice.Name)
	assert.Equal(t, 92, *again.ConnectedDevice.BatteryLevel)
}

func TestOptions_Normalise(t *testing.T) {
	o := Options{ScanJitter: -1, FailureRate: 3}.normalise()
	assert.Equal(t, DefaultScanStep, o.ScanStep)
	assert.Equal(t, DefaultScanTimeout, o.ScanTimeout)
	assert.Equal(t, DefaultHandshakeDelay, o.HandshakeDelay)
	assert.Equal(t, DefaultMonitorInterval, o.MonitorInterval)
	assert.Zero(t, o.ScanJitter)
	assert.Equal(t, 1.0, o.FailureRate)
	assert.NotNil(t, o.Now)
}
