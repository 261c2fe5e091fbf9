package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/scheduler"
	"github.com/mmcdole/mediacovers/internal/visibility"
)

const (
	eventBuffer   = 256
	sweepInterval = 1 * time.Hour
)

// CoverEvent reports a change in the cover state of an entry.
type CoverEvent struct {
	Entry domain.Entry
	State cover.State
	URL   string
	Err   error // ErrCandidateExhausted when no cover exists
}

// CoverOptions wires the throughput and visibility policy.
type CoverOptions struct {
	Scheduler scheduler.Config
	Gate      visibility.Config
	Viewport  func() visibility.Rect
	Observer  visibility.ObserverFactory
}

// CoverService drives cover resolution for a listing: the visibility gate
// admits entries, the resolver supplies candidates, the scheduler fetches
// them, and outcomes flow back into the resolver and the store.
type CoverService struct {
	resolver *cover.Resolver
	store    domain.OutcomeStore
	sched    *scheduler.Scheduler
	gate     *visibility.Gate
	logger   *slog.Logger

	events chan CoverEvent

	mu     sync.Mutex
	gen    int // bumped on Navigate; stale continuations stop retrying
	closed bool
}

// NewCoverService creates a service. store may be nil.
func NewCoverService(
	resolver *cover.Resolver,
	fetcher domain.CoverFetcher,
	store domain.OutcomeStore,
	opts CoverOptions,
	logger *slog.Logger,
) *CoverService {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = domain.NoOpStore{}
	}
	s := &CoverService{
		resolver: resolver,
		store:    store,
		sched:    scheduler.New(opts.Scheduler, fetcher, logger),
		logger:   logger,
		events:   make(chan CoverEvent, eventBuffer),
	}
	s.gate = visibility.New(opts.Gate, opts.Viewport, resolver.Classify, s.admit, opts.Observer, logger)
	return s
}

// Events delivers state changes. The channel is never closed; consumers stop
// reading after Close.
func (s *CoverService) Events() <-chan CoverEvent {
	return s.events
}

// Resolver exposes the resolution state for presentation.
func (s *CoverService) Resolver() *cover.Resolver {
	return s.resolver
}

// Gate exposes the visibility gate (Enable, CheckAll).
func (s *CoverService) Gate() *visibility.Gate {
	return s.gate
}

// Stats returns scheduler counters.
func (s *CoverService) Stats() scheduler.Stats {
	return s.sched.Stats()
}

// Register binds a rendered element to an entry. Entries without covers are
// ignored.
func (s *CoverService) Register(e domain.Entry, el visibility.Element) {
	if err := s.gate.Register(e, el); err != nil && !errors.Is(err, domain.ErrNotRelevant) {
		s.logger.Warn("failed to register entry", "entry", e.Name, "error", err)
	}
}

// Status returns the cover state and best known URL of an entry.
func (s *CoverService) Status(e domain.Entry) (cover.State, string) {
	state := s.resolver.State(e)
	if state == cover.StateUnresolved || state == cover.StateExhausted {
		return state, ""
	}
	url, _ := s.resolver.CurrentURL(e)
	return state, url
}

// Navigate discards in-memory state for the previous listing. Stored
// outcomes survive.
func (s *CoverService) Navigate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	s.resolver.Reset()
	s.gate.Reset()
}

// StartMaintenance sweeps expired outcomes now and then periodically until
// ctx is done.
func (s *CoverService) StartMaintenance(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			if n, err := s.store.SweepExpired(); err != nil {
				s.logger.Warn("outcome sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("swept expired outcomes", "count", n)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// ResolveAll resolves entries without the visibility gate and waits for
// every one of them to settle. Used by batch mode.
func (s *CoverService) ResolveAll(ctx context.Context, entries []domain.Entry) []CoverEvent {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]CoverEvent, 0, len(entries))
	)
	for _, e := range entries {
		if !s.resolver.Classify(e).HasCover() {
			continue
		}
		wg.Add(1)
		var once sync.Once
		s.attempt(e, s.generation(), func(ev CoverEvent) {
			once.Do(func() {
				mu.Lock()
				results = append(results, ev)
				mu.Unlock()
				wg.Done()
			})
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]CoverEvent(nil), results...)
}

// Close tears everything down. Pending work is dropped silently.
func (s *CoverService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.gate.Close()
	s.sched.Close()
}

// admit is the gate callback: resolution runs until success or exhaustion,
// then the gate slot is released. Both outcomes are final for the listing;
// abandoned work never reaches finish and is voided by the gate's Reset.
func (s *CoverService) admit(e domain.Entry) {
	s.attempt(e, s.generation(), func(ev CoverEvent) {
		settled := ev.State == cover.StateResolved || ev.State == cover.StateExhausted
		s.gate.Done(e, settled)
	})
}

// attempt tries the current candidate of an entry. Failures advance the
// resolver and recurse through the scheduler callback until a URL loads or
// none is left; finish is called exactly once in either case, unless the
// service is closed or navigated away first.
func (s *CoverService) attempt(e domain.Entry, gen int, finish func(CoverEvent)) {
	for {
		if !s.current(gen) {
			return
		}

		cur, ok := s.resolver.Current(e)
		if !ok {
			ev := CoverEvent{Entry: e, State: cover.StateExhausted, Err: domain.ErrCandidateExhausted}
			s.emit(ev)
			finish(ev)
			return
		}
		if s.resolver.State(e) == cover.StateResolved {
			ev := CoverEvent{Entry: e, State: cover.StateResolved, URL: cur.URL}
			s.emit(ev)
			finish(ev)
			return
		}

		// Another entry already proved this URL bad.
		if !cur.FromStore && s.resolver.IsFailedURL(cur.URL) {
			s.resolver.MarkFailed(e, cur.URL)
			continue
		}

		s.emit(CoverEvent{Entry: e, State: cover.StateTrying, URL: cur.URL})
		// A closed scheduler drops the task; teardown is silent.
		s.sched.Enqueue(scheduler.Task{
			URL:        cur.URL,
			Entry:      e,
			Revalidate: cur.FromStore,
			OnDone: func(res scheduler.Result) {
				s.handleResult(res, gen, finish)
			},
		})
		return
	}
}

func (s *CoverService) handleResult(res scheduler.Result, gen int, finish func(CoverEvent)) {
	if res.Err == nil {
		s.resolver.MarkResolved(res.Entry, res.URL)
		ev := CoverEvent{Entry: res.Entry, State: cover.StateResolved, URL: res.URL}
		s.emit(ev)
		finish(ev)
		return
	}

	if errors.Is(res.Err, domain.ErrStaleOutcome) {
		s.logger.Info("stored cover is stale", "entry", res.Entry.Name, "url", res.URL)
	} else {
		s.logger.Debug("cover candidate failed", "entry", res.Entry.Name, "url", res.URL, "error", res.Err)
	}
	s.resolver.MarkFailed(res.Entry, res.URL)
	s.attempt(res.Entry, gen, finish)
}

func (s *CoverService) emit(ev CoverEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("cover event dropped", "entry", ev.Entry.Name, "state", ev.State)
	}
}

func (s *CoverService) generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// current reports whether work started in generation gen may continue.
func (s *CoverService) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gen == gen
}
