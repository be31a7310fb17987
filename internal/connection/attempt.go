package connection

import (
	"context"
	"sync"

	"github.com/nerrad567/avclink-core/internal/device"
)

// Attempt is a handle on one in-flight connection. It resolves exactly once
// with nil (connected), ErrCanceled, ErrConnectionFailed or ErrClosed.
type Attempt struct {
	sim    *Simulator
	target device.Device

	done chan struct{}
	once sync.Once
	err  error
}

func newAttempt(sim *Simulator, target device.Device) *Attempt {
	return &Attempt{
		sim:    sim,
		target: *target.DeepCopy(),
		done:   make(chan struct{}),
	}
}

// Device returns a copy of the device being connected.
func (a *Attempt) Device() device.Device {
	return *a.target.DeepCopy()
}

// Done is closed when the attempt resolves.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the outcome, or nil while the attempt is still pending.
func (a *Attempt) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until the attempt resolves or ctx ends. A ctx error leaves
// the attempt running; call Cancel to abandon it.
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel abandons the attempt if it is still pending. No-op otherwise.
func (a *Attempt) Cancel() {
	a.sim.cancelAttempt(a)
}

func (a *Attempt) resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}
