package visibility

import (
	"context"
	"sync"
	"time"
)

// ReadinessConfig decides when a listing counts as fully rendered.
type ReadinessConfig struct {
	InitialDelay    time.Duration // wait before the first poll
	StableInterval  time.Duration // poll period
	StableThreshold int           // consecutive unchanged polls required
	ForceEnable     time.Duration // upper bound, measured after InitialDelay
}

// DefaultReadinessConfig returns the default stability policy.
func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{
		InitialDelay:    1 * time.Second,
		StableInterval:  500 * time.Millisecond,
		StableThreshold: 2,
		ForceEnable:     3 * time.Second,
	}
}

// Readiness polls the rendered entry count and fires onReady once the count
// stops changing, or when the force timeout elapses, whichever comes first.
type Readiness struct {
	cfg     ReadinessConfig
	count   func() int
	onReady func()

	mu      sync.Mutex
	last    int
	stable  int
	ready   bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewReadiness creates a readiness gate. count returns the number of entries
// currently rendered by the host.
func NewReadiness(cfg ReadinessConfig, count func() int, onReady func()) *Readiness {
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = 1
	}
	if cfg.StableInterval <= 0 {
		cfg.StableInterval = 500 * time.Millisecond
	}
	return &Readiness{
		cfg:     cfg,
		count:   count,
		onReady: onReady,
		last:    -1,
	}
}

// Start begins polling in the background. It is a no-op once started.
func (r *Readiness) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil || r.ready {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
}

// Stop cancels polling without firing onReady.
func (r *Readiness) Stop() {
	r.mu.Lock()
	cancel, stopped := r.cancel, r.stopped
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Ready reports whether onReady has fired.
func (r *Readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Observe feeds one poll result and reports whether the listing is now stable.
// An empty listing never counts as stable.
func (r *Readiness) Observe(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return true
	}
	if n == 0 {
		r.stable = 0
		return false
	}
	if n == r.last {
		r.stable++
	} else {
		r.last = n
		r.stable = 0
	}
	return r.stable >= r.cfg.StableThreshold
}

func (r *Readiness) loop(ctx context.Context) {
	defer close(r.stopped)

	if r.cfg.InitialDelay > 0 {
		select {
		case <-time.After(r.cfg.InitialDelay):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(r.cfg.StableInterval)
	defer ticker.Stop()

	var force <-chan time.Time
	if r.cfg.ForceEnable > 0 {
		timer := time.NewTimer(r.cfg.ForceEnable)
		defer timer.Stop()
		force = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-force:
			r.fire()
			return
		case <-ticker.C:
			if r.Observe(r.count()) {
				r.fire()
				return
			}
		}
	}
}

func (r *Readiness) fire() {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return
	}
	r.ready = true
	r.mu.Unlock()

	if r.onReady != nil {
		r.onReady()
	}
}
