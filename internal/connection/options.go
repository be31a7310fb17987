package connection

import "time"

// Default timings.
const (
	DefaultScanStep        = 3 * time.Second
	DefaultScanJitter      = 2 * time.Second
	DefaultScanTimeout     = 20 * time.Second
	DefaultHandshakeDelay  = 10 * time.Second
	DefaultMonitorInterval = 2 * time.Second
)

// Options configures a Simulator.
type Options struct {
	// Seed seeds the telemetry and jitter generator. Zero seeds from the clock.
	Seed int64

	// ScanStep is the nominal spacing between discoveries: the candidate at
	// position i is discovered after ScanStep*(i+1) plus jitter.
	ScanStep time.Duration

	// ScanJitter bounds the random delay added to each discovery.
	// Zero disables jitter.
	ScanJitter time.Duration

	// ScanTimeout ends a scan regardless of discovery progress.
	ScanTimeout time.Duration

	// HandshakeDelay is the simulated pairing time.
	HandshakeDelay time.Duration

	// MonitorInterval is the telemetry tick while connected.
	MonitorInterval time.Duration

	// FailureRate is the probability (0..1) that a handshake fails.
	FailureRate float64

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultOptions returns the standard dashboard timings with a clock seed
// and no failures.
func DefaultOptions() Options {
	return Options{
		ScanStep:        DefaultScanStep,
		ScanJitter:      DefaultScanJitter,
		ScanTimeout:     DefaultScanTimeout,
		HandshakeDelay:  DefaultHandshakeDelay,
		MonitorInterval: DefaultMonitorInterval,
	}
}

// normalise fills zero durations (other than ScanJitter) with defaults and
// clamps FailureRate into [0,1].
func (o Options) normalise() Options {
	if o.ScanStep <= 0 {
		o.ScanStep = DefaultScanStep
	}
	if o.ScanJitter < 0 {
		o.ScanJitter = 0
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.HandshakeDelay <= 0 {
		o.HandshakeDelay = DefaultHandshakeDelay
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	o.FailureRate = min(max(o.FailureRate, 0), 1)
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}
