package visibility

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mmcdole/mediacovers/internal/domain"
)

// Defaults for the gate policy knobs.
const (
	DefaultThreshold   = 0.99
	DefaultMaxAdmitted = 3
	DefaultMargin      = 10
)

// Rect is a box in viewport coordinates.
type Rect struct {
	Top, Bottom, Left, Right float64
}

// Element is whatever the presentation layer renders an entry into.
type Element interface {
	Bounds() Rect
}

// Intersection reports how much of a registered element is inside the viewport.
type Intersection struct {
	Key   string
	Ratio float64
}

// Observer is the push-based visibility primitive. Implementations deliver
// changes through the callback given to their factory.
type Observer interface {
	Observe(key string, el Element) error
	Unobserve(key string)
	Disconnect()
}

// ObserverFactory builds an Observer. Returning an error (or a nil factory)
// makes the gate fall back to polling element bounds.
type ObserverFactory func(onChange func([]Intersection), threshold float64) (Observer, error)

// Config holds the gate policy.
type Config struct {
	Threshold   float64 // ratio needed to count as visible
	MaxAdmitted int     // entries loading at the same time
	Margin      float64 // viewport expansion for the polling check
	MinJitter   time.Duration
	MaxJitter   time.Duration
}

// DefaultConfig returns the default gate policy.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		MaxAdmitted: DefaultMaxAdmitted,
		Margin:      DefaultMargin,
		MinJitter:   100 * time.Millisecond,
		MaxJitter:   500 * time.Millisecond,
	}
}

type registration struct {
	entry   domain.Entry
	el      Element
	loading bool
	loaded  bool
}

// Gate admits registered entries to loading only while they are on screen.
// It stays disabled until Enable is called (see Readiness).
type Gate struct {
	cfg      Config
	viewport func() Rect
	classify func(domain.Entry) domain.Classification
	admit    func(domain.Entry)
	logger   *slog.Logger

	mu       sync.Mutex
	observer Observer
	entries  map[string]*registration
	visible  map[string]bool
	loading  map[string]bool
	enabled  bool
	closed   bool
	gen      int // bumped on Reset/Close to void pending admissions
}

// New creates a gate. viewport returns the current viewport bounds for the
// polling fallback; classify decides which entries may register; admit is
// called (from a timer goroutine) for every admitted entry.
func New(
	cfg Config,
	viewport func() Rect,
	classify func(domain.Entry) domain.Classification,
	admit func(domain.Entry),
	factory ObserverFactory,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if classify == nil {
		classify = domain.Classify
	}
	if cfg.MaxAdmitted <= 0 {
		cfg.MaxAdmitted = DefaultMaxAdmitted
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxJitter < cfg.MinJitter {
		cfg.MaxJitter = cfg.MinJitter
	}
	g := &Gate{
		cfg:      cfg,
		viewport: viewport,
		classify: classify,
		admit:    admit,
		logger:   logger,
		entries:  make(map[string]*registration),
		visible:  make(map[string]bool),
		loading:  make(map[string]bool),
	}
	if factory != nil {
		obs, err := factory(g.HandleIntersections, cfg.Threshold)
		if err != nil {
			logger.Debug("intersection observer unavailable, polling", "error", err)
		} else {
			g.observer = obs
		}
	}
	return g
}

// Register starts tracking an entry. Only entries that carry covers are
// accepted; others return domain.ErrNotRelevant.
func (g *Gate) Register(e domain.Entry, el Element) error {
	if el == nil {
		return nil
	}
	if !g.classify(e).HasCover() {
		return domain.ErrNotRelevant
	}

	g.mu.Lock()
	key := e.Key()
	if _, ok := g.entries[key]; ok || g.closed {
		g.mu.Unlock()
		return nil
	}
	g.entries[key] = &registration{entry: e, el: el}
	obs := g.observer
	g.mu.Unlock()

	// Observers may report synchronously, so Observe runs without the lock.
	if obs != nil && obs.Observe(key, el) == nil {
		return nil
	}

	g.mu.Lock()
	g.checkLocked(key)
	g.mu.Unlock()
	return nil
}

// Unregister stops tracking an entry.
func (g *Gate) Unregister(e domain.Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := e.Key()
	if _, ok := g.entries[key]; !ok {
		return
	}
	delete(g.entries, key)
	delete(g.visible, key)
	delete(g.loading, key)
	if g.observer != nil {
		g.observer.Unobserve(key)
	}
}

// HandleIntersections applies a batch of observer changes.
func (g *Gate) HandleIntersections(changes []Intersection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range changes {
		if _, ok := g.entries[c.Key]; !ok {
			continue
		}
		if c.Ratio >= g.cfg.Threshold {
			g.visible[c.Key] = true
			g.scheduleLocked(c.Key)
		} else {
			delete(g.visible, c.Key)
		}
	}
}

// Enable turns the gate on and checks every registered entry.
func (g *Gate) Enable() {
	g.mu.Lock()
	if g.enabled || g.closed {
		g.mu.Unlock()
		return
	}
	g.enabled = true
	g.mu.Unlock()

	g.logger.Debug("visibility gate enabled")
	g.CheckAll()
}

// Enabled reports whether the gate admits entries.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// CheckAll re-evaluates every entry that is neither loaded nor loading,
// e.g. after a scroll.
func (g *Gate) CheckAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled || g.closed {
		return
	}
	for key := range g.entries {
		g.checkLocked(key)
	}
}

// Done releases the loading slot of an entry. Loaded entries are never
// admitted again for this listing.
func (g *Gate) Done(e domain.Entry, loaded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := e.Key()
	delete(g.loading, key)
	if reg, ok := g.entries[key]; ok {
		reg.loading = false
		reg.loaded = loaded || reg.loaded
	}

	// A freed slot may let a waiting visible entry in.
	for k := range g.entries {
		g.checkLocked(k)
	}
}

// Loading returns how many entries currently hold a slot.
func (g *Gate) Loading() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.loading)
}

// Reset forgets every registration (navigation). The gate stays enabled.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.observer != nil {
		for key := range g.entries {
			g.observer.Unobserve(key)
		}
	}
	g.entries = make(map[string]*registration)
	g.visible = make(map[string]bool)
	g.loading = make(map[string]bool)
	g.gen++
}

// Close disconnects the observer and voids pending admissions.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	g.enabled = false
	g.gen++
	if g.observer != nil {
		g.observer.Disconnect()
	}
	g.entries = make(map[string]*registration)
	g.visible = make(map[string]bool)
	g.loading = make(map[string]bool)
}

// checkLocked schedules an entry when it is visible. Observer-visible
// entries count as visible; otherwise element bounds are compared against the
// viewport expanded by the margin.
func (g *Gate) checkLocked(key string) {
	reg, ok := g.entries[key]
	if !ok || reg.loaded || reg.loading || !g.enabled {
		return
	}
	if g.visible[key] || g.inViewport(reg.el) {
		g.scheduleLocked(key)
	}
}

func (g *Gate) inViewport(el Element) bool {
	if g.viewport == nil {
		return false
	}
	vp := g.viewport()
	r := el.Bounds()
	m := g.cfg.Margin
	return r.Top <= vp.Bottom+m &&
		r.Bottom >= vp.Top-m &&
		r.Left <= vp.Right+m &&
		r.Right >= vp.Left-m
}

// scheduleLocked admits an entry after a jittered delay, if a slot is free.
func (g *Gate) scheduleLocked(key string) {
	if !g.enabled || g.closed || len(g.loading) >= g.cfg.MaxAdmitted {
		return
	}
	gen := g.gen
	d := g.jitter()
	if d <= 0 {
		go g.process(key, gen)
		return
	}
	time.AfterFunc(d, func() { g.process(key, gen) })
}

func (g *Gate) process(key string, gen int) {
	g.mu.Lock()
	reg, ok := g.entries[key]
	if !ok || gen != g.gen || g.closed || reg.loaded || reg.loading ||
		len(g.loading) >= g.cfg.MaxAdmitted {
		g.mu.Unlock()
		return
	}
	reg.loading = true
	g.loading[key] = true
	entry := reg.entry
	g.mu.Unlock()

	if g.admit != nil {
		g.admit(entry)
	}
}

func (g *Gate) jitter() time.Duration {
	span := g.cfg.MaxJitter - g.cfg.MinJitter
	if span <= 0 {
		return g.cfg.MinJitter
	}
	return g.cfg.MinJitter + rand.N(span+1)
}
