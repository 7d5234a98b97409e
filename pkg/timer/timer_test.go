package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFiresPeriodically(t *testing.T) {
	var count int32
	tm := New(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	tm.Arm()
	defer tm.Destroy()

	time.Sleep(55 * time.Millisecond)
	got := atomic.LoadInt32(&count)
	if got < 3 {
		t.Fatalf("onExpiry fired %d times in 55ms at a 10ms period, want at least 3", got)
	}
}

func TestDisarmStopsFiring(t *testing.T) {
	var count int32
	tm := New(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	tm.Arm()
	time.Sleep(25 * time.Millisecond)
	tm.Disarm()
	after := atomic.LoadInt32(&count)

	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != after {
		t.Fatalf("onExpiry fired after Disarm: %d -> %d", after, got)
	}
}

func TestForceInvokesImmediately(t *testing.T) {
	var count int32
	tm := New(time.Hour, func() { atomic.AddInt32(&count, 1) })
	tm.Arm()
	defer tm.Destroy()

	tm.Force()
	time.Sleep(10 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("onExpiry fired %d times after one Force, want 1", got)
	}
}

func TestForceResetsTheRegularSchedule(t *testing.T) {
	var count int32
	period := 40 * time.Millisecond
	tm := New(period, func() { atomic.AddInt32(&count, 1) })
	tm.Arm()
	defer tm.Destroy()

	// Force shortly before the regularly scheduled tick would fire. If
	// Force didn't re-arm the ticker, the pending regular tick would still
	// land a few milliseconds later, double-counting this expiry.
	time.Sleep(30 * time.Millisecond)
	tm.Force()
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("onExpiry fired %d times shortly after Force, want exactly 1 (the stale tick fired too)", got)
	}

	// The next regular expiry should now be a full period after the forced
	// one, not whenever the original (unreset) schedule would have landed.
	time.Sleep(period)
	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("onExpiry fired %d times one period after Force, want 2", got)
	}
}

func TestForceOnDisarmedTimerIsNoop(t *testing.T) {
	var count int32
	tm := New(time.Hour, func() { atomic.AddInt32(&count, 1) })
	tm.Force()
	time.Sleep(10 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 0 {
		t.Fatalf("Force on a disarmed timer fired onExpiry %d times, want 0", got)
	}
}

func TestArmIsIdempotentWhileArmed(t *testing.T) {
	var count int32
	tm := New(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	tm.Arm()
	tm.Arm()
	defer tm.Destroy()

	time.Sleep(25 * time.Millisecond)
	// Re-arming without an intervening Disarm must not spawn a second
	// run loop ticking independently.
	if got := atomic.LoadInt32(&count); got > 4 {
		t.Fatalf("onExpiry fired %d times in 25ms at a 10ms period, suspiciously high for a single timer", got)
	}
}
