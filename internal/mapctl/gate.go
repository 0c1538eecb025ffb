package mapctl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMapReadyTimeout reports that the map surface never signalled readiness
// within the configured window.
var ErrMapReadyTimeout = errors.New("map surface did not become ready in time")

// ErrGateClosed reports that the gate failed before the map became ready.
var ErrGateClosed = errors.New("map readiness gate closed")

// ReadyGate latches the first readiness signal from the map surface. It
// resolves at most once; later Resolve and Fail calls are ignored.
type ReadyGate struct {
	timeout time.Duration

	mu      sync.Mutex
	done    chan struct{}
	err     error
	settled bool
}

func NewReadyGate(timeout time.Duration) *ReadyGate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReadyGate{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Resolve marks the map surface ready.
func (g *ReadyGate) Resolve() {
	g.settle(nil)
}

// Fail closes the gate with an error.
func (g *ReadyGate) Fail(err error) {
	if err == nil {
		err = ErrGateClosed
	}
	g.settle(err)
}

func (g *ReadyGate) settle(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settled {
		return
	}
	g.settled = true
	g.err = err
	close(g.done)
}

// Ready reports whether the gate has resolved successfully.
func (g *ReadyGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settled && g.err == nil
}

// Wait blocks until the gate settles, the context is cancelled, or the
// timeout elapses. The timeout counts from the first Wait call, not from
// gate construction, so a slow session start does not eat into the window.
func (g *ReadyGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.settled {
		err := g.err
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-g.done:
		g.mu.Lock()
		err := g.err
		g.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrMapReadyTimeout
	}
}
