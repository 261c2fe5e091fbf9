package visibility

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadiness_Observe(t *testing.T) {
	r := NewReadiness(ReadinessConfig{StableThreshold: 2}, nil, nil)

	steps := []struct {
		n    int
		want bool
	}{
		{0, false}, // empty listing never counts
		{5, false},
		{5, false},
		{7, false}, // change resets the streak
		{7, false},
		{7, true},
	}
	for i, s := range steps {
		if got := r.Observe(s.n); got != s.want {
			t.Fatalf("step %d: Observe(%d) = %v, want %v", i, s.n, got, s.want)
		}
	}
}

func TestReadiness_EmptyNeverStable(t *testing.T) {
	r := NewReadiness(ReadinessConfig{StableThreshold: 1}, nil, nil)
	for i := 0; i < 10; i++ {
		if r.Observe(0) {
			t.Fatalf("empty listing reported stable")
		}
	}
}

func TestReadiness_FiresWhenStable(t *testing.T) {
	fired := make(chan struct{}, 1)
	r := NewReadiness(ReadinessConfig{
		InitialDelay:    5 * time.Millisecond,
		StableInterval:  5 * time.Millisecond,
		StableThreshold: 2,
		ForceEnable:     time.Minute,
	}, func() int { return 12 }, func() { fired <- struct{}{} })

	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("onReady not called for a stable listing")
	}
	if !r.Ready() {
		t.Fatalf("Ready() = false after firing")
	}
}

func TestReadiness_ForceEnable(t *testing.T) {
	var n atomic.Int32
	fired := make(chan struct{}, 1)
	r := NewReadiness(ReadinessConfig{
		StableInterval:  2 * time.Millisecond,
		StableThreshold: 2,
		ForceEnable:     30 * time.Millisecond,
	}, func() int { return int(n.Add(1)) }, func() { fired <- struct{}{} })

	start := time.Now()
	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("force timeout did not fire")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("fired after %s, before the force timeout", elapsed)
	}
}

func TestReadiness_StopBeforeReady(t *testing.T) {
	var calls atomic.Int32
	r := NewReadiness(ReadinessConfig{
		InitialDelay:    time.Hour,
		StableInterval:  time.Millisecond,
		StableThreshold: 1,
		ForceEnable:     time.Hour,
	}, func() int { return 1 }, func() { calls.Add(1) })

	r.Start(context.Background())
	r.Stop()

	if calls.Load() != 0 || r.Ready() {
		t.Fatalf("onReady fired after Stop")
	}
}
