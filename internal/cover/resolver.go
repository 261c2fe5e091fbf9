package cover

import (
	"log/slog"
	"sync"

	"github.com/mmcdole/mediacovers/internal/domain"
)

// State is the resolution progress of one entry.
type State int

const (
	StateUnresolved State = iota // no lookup yet
	StateTrying                  // a candidate (or stored outcome) is pending verification
	StateResolved                // a URL has been verified
	StateExhausted               // every candidate failed
)

func (s State) String() string {
	switch s {
	case StateTrying:
		return "trying"
	case StateResolved:
		return "resolved"
	case StateExhausted:
		return "none"
	default:
		return "pending"
	}
}

// Current is the URL an entry should try next.
type Current struct {
	URL       string
	FromStore bool // tentative answer from the outcome store, needs revalidation
}

// resolution is the per-entry state machine. cursor only grows.
type resolution struct {
	candidates []string
	cursor     int

	resolved  string // verified answer, wins over cursor
	persisted string // unverified answer loaded from the store
}

// Resolver owns every in-memory resolution decision: per-entry cursors, the
// verified answers and the negative URL cache. It is safe for concurrent use;
// all transitions happen under one lock so cursors stay monotonic.
type Resolver struct {
	cfg    PathConfig
	store  domain.OutcomeStore
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*resolution
	failed map[string]struct{} // normalized URL -> known bad
}

// NewResolver creates a resolver. A nil store disables persistence.
func NewResolver(cfg PathConfig, store domain.OutcomeStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = domain.NoOpStore{}
	}
	return &Resolver{
		cfg:    cfg,
		store:  store,
		logger: logger,
		states: make(map[string]*resolution),
		failed: make(map[string]struct{}),
	}
}

// Config returns the path configuration candidates are built from.
func (r *Resolver) Config() PathConfig {
	return r.cfg
}

// Classify re-derives the classification of an entry using resolution state.
// Only gif entries are affected: a gif whose known cover URL lives in a video
// thumbnail cache is a video cover, not a native image.
func (r *Resolver) Classify(e domain.Entry) domain.Classification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classifyLocked(e)
}

func (r *Resolver) classifyLocked(e domain.Entry) domain.Classification {
	class := domain.Classify(e)
	if class != domain.ClassNativeImage {
		return class
	}
	st := r.lookupLocked(e)
	known := st.resolved
	if known == "" {
		known = st.persisted
	}
	if known != "" && IsVideoThumbURL(known) {
		return domain.ClassVideo
	}
	return class
}

// CurrentURL returns the URL to try for an entry, or false when none is left.
func (r *Resolver) CurrentURL(e domain.Entry) (string, bool) {
	cur, ok := r.Current(e)
	return cur.URL, ok
}

// Current is CurrentURL with the origin of the answer.
func (r *Resolver) Current(e domain.Entry) (Current, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.lookupLocked(e)
	if st.resolved != "" {
		return Current{URL: st.resolved}, true
	}
	if st.persisted != "" {
		return Current{URL: st.persisted, FromStore: true}, true
	}
	if !r.classifyLocked(e).HasCover() {
		return Current{}, false
	}
	if st.cursor >= len(st.candidates) {
		return Current{}, false
	}
	return Current{URL: st.candidates[st.cursor]}, true
}

// MarkFailed records that url did not load for the entry.
//
// A failed stored outcome is stale: it is dropped from memory and from the
// store, and resolution falls back to the candidates. A failed candidate
// advances the cursor by one. Reports for a URL that is no longer current are
// only added to the negative cache; the cursor never moves twice for one
// candidate.
func (r *Resolver) MarkFailed(e domain.Entry, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[e.Key()]
	if !ok || !r.classifyLocked(e).HasCover() {
		return
	}

	norm := NormalizeURL(url)
	r.failed[norm] = struct{}{}

	if st.resolved != "" && NormalizeURL(st.resolved) == norm {
		st.resolved = ""
	}

	if st.persisted != "" && NormalizeURL(st.persisted) == norm {
		st.persisted = ""
		if err := r.store.Remove(e.Key()); err != nil {
			r.logger.Warn("failed to remove stale outcome", "key", e.Key(), "error", err)
		}
		r.logger.Debug("stale outcome dropped", "key", e.Key(), "url", url)
		return
	}

	if st.cursor < len(st.candidates) && NormalizeURL(st.candidates[st.cursor]) == norm {
		st.cursor++
		if st.cursor >= len(st.candidates) {
			r.logger.Debug("candidates exhausted", "key", e.Key(), "tried", st.cursor)
		}
	}
}

// MarkResolved records url as the verified cover of the entry and persists it.
// The cursor stops mattering from here on.
func (r *Resolver) MarkResolved(e domain.Entry, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.lookupLocked(e)
	st.resolved = url
	st.persisted = ""
	delete(r.failed, NormalizeURL(url))

	if err := r.store.Set(e.Key(), url, e); err != nil {
		r.logger.Warn("failed to persist outcome", "key", e.Key(), "error", err)
	}
}

// IsFailedURL reports whether url already failed for any entry.
func (r *Resolver) IsFailedURL(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[NormalizeURL(url)]
	return ok
}

// State returns the resolution progress of an entry without creating state.
func (r *Resolver) State(e domain.Entry) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[e.Key()]
	switch {
	case !ok:
		return StateUnresolved
	case st.resolved != "":
		return StateResolved
	case st.persisted != "":
		return StateTrying
	case st.cursor < len(st.candidates):
		return StateTrying
	default:
		return StateExhausted
	}
}

// Candidates returns a copy of the candidate list of an entry.
func (r *Resolver) Candidates(e domain.Entry) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.lookupLocked(e)
	out := make([]string, len(st.candidates))
	copy(out, st.candidates)
	return out
}

// Cursor returns the index of the candidate being tried.
func (r *Resolver) Cursor(e domain.Entry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[e.Key()]; ok {
		return st.cursor
	}
	return 0
}

// Reset discards all in-memory resolution state, e.g. on navigation.
// The outcome store is left untouched.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]*resolution)
	r.failed = make(map[string]struct{})
}

// Forget discards the state of specific entries.
func (r *Resolver) Forget(entries ...domain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		delete(r.states, e.Key())
	}
}

// lookupLocked returns the state of an entry, creating it on first use.
// Creation consults the store once and builds the candidate list.
func (r *Resolver) lookupLocked(e domain.Entry) *resolution {
	key := e.Key()
	if st, ok := r.states[key]; ok {
		return st
	}
	st := &resolution{candidates: Candidates(e, r.cfg)}
	if url, ok := r.store.Get(key); ok {
		st.persisted = url
	}
	r.states[key] = st
	return st
}
