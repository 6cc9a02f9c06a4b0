package metrics

import (
	"testing"
	"time"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()
	if duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

// TestTimerObserveDurationMigration exercises the balancer's migration
// timer (pkg/balancer.migrate) against the real MigrationDuration
// histogram rather than a disposable test metric.
func TestTimerObserveDurationMigration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer.ObserveDuration(MigrationDuration)

	if timer.Duration() == 0 {
		t.Error("ObserveDuration recorded a zero-duration sample")
	}
}

// TestTimerObserveDurationVecHeartbeat exercises the registered
// HeartbeatLatency vec, keyed by peer.
func TestTimerObserveDurationVecHeartbeat(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer.ObserveDurationVec(HeartbeatLatency, "127.0.0.1:27018")

	if timer.Duration() == 0 {
		t.Error("ObserveDurationVec recorded a zero-duration sample")
	}
}

func TestTimerMultipleCalls(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()

	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("second Duration() call should be longer: first=%v, second=%v", first, second)
	}
}

func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer2 := NewTimer()
	time.Sleep(10 * time.Millisecond)

	if timer1.Duration() <= timer2.Duration() {
		t.Errorf("timer1 should be running longer: timer1=%v, timer2=%v", timer1.Duration(), timer2.Duration())
	}
}
