package mqtt

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default breaker settings.
const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// Publisher is anything that can publish a message. *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// BreakerConfig configures a BreakerPublisher. Zero fields take defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before a trial publish is allowed.
	Timeout time.Duration

	// Interval clears failure counts while closed.
	Interval time.Duration
}

// BreakerPublisher guards a Publisher with a circuit breaker. While the
// broker is unreachable, publishes fail fast with ErrCircuitOpen instead of
// each waiting out the publish timeout. Used for high-rate telemetry so a
// dead broker never stalls the monitor tick.
type BreakerPublisher struct {
	inner   Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerPublisher wraps inner. logger may be nil.
func NewBreakerPublisher(inner Publisher, cfg BreakerConfig, logger Logger) *BreakerPublisher {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	})

	return &BreakerPublisher{inner: inner, breaker: cb}
}

// Publish forwards to the wrapped Publisher through the breaker.
func (p *BreakerPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.inner.Publish(topic, payload, qos, retained)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

// State returns the breaker state for health reporting.
func (p *BreakerPublisher) State() gobreaker.State {
	return p.breaker.State()
}
