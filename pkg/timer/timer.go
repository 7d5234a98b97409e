// Package timer implements the link layer's per-connection retransmission
// timer. Where the reference implementation arms a SIGALRM handler, this
// package runs a goroutine driven by a time.Ticker — the design alternative
// the specification calls out for an asynchronous, per-connection timer
// whose callback executes on its own execution context.
package timer

import (
	"sync"
	"time"
)

// Timer arms and disarms a periodic retransmission alarm. OnExpiry is
// invoked from the timer's own goroutine, never from Arm/Disarm/Force, so
// the owner must not hold a lock across a call into this package that it
// also takes inside OnExpiry.
type Timer struct {
	period   time.Duration
	onExpiry func()

	mu      sync.Mutex
	ticker  *time.Ticker
	stopCh  chan struct{}
	armed   bool
	forceCh chan struct{}
}

// New creates a timer bound to period and the given expiry callback. The
// timer starts disarmed; call Arm to start it.
func New(period time.Duration, onExpiry func()) *Timer {
	return &Timer{
		period:   period,
		onExpiry: onExpiry,
	}
}

// Arm starts (or restarts) the periodic alarm. Arming an already-armed
// timer is a no-op.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.armed {
		return
	}
	t.armed = true
	t.ticker = time.NewTicker(t.period)
	t.stopCh = make(chan struct{})
	t.forceCh = make(chan struct{}, 1)

	go t.run(t.ticker, t.stopCh, t.forceCh)
}

// Disarm stops the alarm. Disarming an already-disarmed timer is a no-op.
func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Timer) disarmLocked() {
	if !t.armed {
		return
	}
	t.armed = false
	t.ticker.Stop()
	close(t.stopCh)
}

// Force invokes the expiry handler immediately, as if the period had
// elapsed, then re-arms the alarm so the next regular expiry is a full
// period after the forced one rather than whatever was left on the
// already-scheduled tick. Force on a disarmed timer is a no-op, matching
// the protocol's use of Force only while a command is outstanding (REJ can
// only arrive while the timer is armed).
func (t *Timer) Force() {
	t.mu.Lock()
	armed := t.armed
	forceCh := t.forceCh
	t.mu.Unlock()

	if !armed {
		return
	}
	select {
	case forceCh <- struct{}{}:
	default:
	}
}

// Destroy permanently stops the timer. A destroyed timer must not be
// reused.
func (t *Timer) Destroy() {
	t.Disarm()
}

func (t *Timer) run(ticker *time.Ticker, stopCh chan struct{}, forceCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			t.onExpiry()
		case <-forceCh:
			t.onExpiry()
			ticker.Reset(t.period)
		}
	}
}
