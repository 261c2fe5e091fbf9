package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/scheduler"
	"github.com/mmcdole/mediacovers/internal/store"
	"github.com/mmcdole/mediacovers/internal/visibility"
)

// fakeFetcher serves the URLs in ok and fails everything else.
type fakeFetcher struct {
	mu     sync.Mutex
	ok     map[string]bool
	fetch  []string
	exists []string
}

func newFakeFetcher(ok ...string) *fakeFetcher {
	f := &fakeFetcher{ok: make(map[string]bool)}
	for _, u := range ok {
		f.ok[u] = true
	}
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetch = append(f.fetch, url)
	if !f.ok[url] {
		return fmt.Errorf("%w: status 404", domain.ErrFetchFailed)
	}
	return nil
}

func (f *fakeFetcher) Exists(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = append(f.exists, url)
	return f.ok[url], nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetch...)
}

func (f *fakeFetcher) revalidated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.exists...)
}

func testOptions() CoverOptions {
	gate := visibility.DefaultConfig()
	gate.MinJitter, gate.MaxJitter = 0, 0
	return CoverOptions{
		Scheduler: scheduler.Config{MaxConcurrent: 1},
		Gate:      gate,
	}
}

func newTestService(t *testing.T, f *fakeFetcher, outcomes domain.OutcomeStore, opts CoverOptions) *CoverService {
	t.Helper()
	if outcomes == nil {
		s, err := store.NewOutcomeStore("", store.Options{})
		if err != nil {
			t.Fatalf("NewOutcomeStore: %v", err)
		}
		outcomes = s
	}
	r := cover.NewResolver(cover.DefaultPathConfig(), outcomes, nil)
	svc := NewCoverService(r, f, outcomes, opts, nil)
	t.Cleanup(svc.Close)
	return svc
}

func resolveOne(t *testing.T, svc *CoverService, e domain.Entry) CoverEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := svc.ResolveAll(ctx, []domain.Entry{e})
	if len(events) != 1 {
		t.Fatalf("ResolveAll() returned %d events", len(events))
	}
	return events[0]
}

var (
	song  = domain.Entry{URI: "/music/song.mp3", Name: "song.mp3"}
	movie = domain.Entry{URI: "/v/movie.mkv", Name: "movie.mkv"}
)

func TestCoverService_ResolvesFirstCandidate(t *testing.T) {
	f := newFakeFetcher("/music/cache/covers/song.jpg")
	outcomes, _ := store.NewOutcomeStore("", store.Options{})
	svc := newTestService(t, f, outcomes, testOptions())

	ev := resolveOne(t, svc, song)
	if ev.State != cover.StateResolved || ev.URL != "/music/cache/covers/song.jpg" {
		t.Fatalf("event = %+v", ev)
	}
	if u, ok := outcomes.Get(song.Key()); !ok || u != ev.URL {
		t.Fatalf("outcome not persisted: %q, %v", u, ok)
	}
	if state, url := svc.Status(song); state != cover.StateResolved || url != ev.URL {
		t.Fatalf("Status() = %s, %q", state, url)
	}
}

func TestCoverService_FallsBackToNextCandidate(t *testing.T) {
	f := newFakeFetcher("/v/cache/videothumbnail/movie.gif")
	svc := newTestService(t, f, nil, testOptions())

	ev := resolveOne(t, svc, movie)
	if ev.State != cover.StateResolved || ev.URL != "/v/cache/videothumbnail/movie.gif" {
		t.Fatalf("event = %+v", ev)
	}
	want := []string{"/v/cache/videothumbnail/movie.jpg", "/v/cache/videothumbnail/movie.gif"}
	if got := f.fetched(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("fetch order = %v, want %v", got, want)
	}
}

func TestCoverService_Exhaustion(t *testing.T) {
	f := newFakeFetcher()
	svc := newTestService(t, f, nil, testOptions())

	ev := resolveOne(t, svc, movie)
	if ev.State != cover.StateExhausted || !errors.Is(ev.Err, domain.ErrCandidateExhausted) {
		t.Fatalf("event = %+v", ev)
	}
	if got := len(f.fetched()); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestCoverService_NegativeCacheSkipsKnownFailures(t *testing.T) {
	f := newFakeFetcher()
	svc := newTestService(t, f, nil, testOptions())

	// Both files share one audio cover path.
	flac := domain.Entry{URI: "/music/song.flac", Name: "song.flac"}
	resolveOne(t, svc, song)
	ev := resolveOne(t, svc, flac)

	if ev.State != cover.StateExhausted {
		t.Fatalf("event = %+v", ev)
	}
	if got := f.fetched(); len(got) != 1 {
		t.Fatalf("fetched %v, want the shared url once", got)
	}
}

func TestCoverService_StoredOutcomeRevalidated(t *testing.T) {
	outcomes, _ := store.NewOutcomeStore("", store.Options{})
	outcomes.Set(song.Key(), "/music/cache/covers/song.jpg", song)

	f := newFakeFetcher("/music/cache/covers/song.jpg")
	svc := newTestService(t, f, outcomes, testOptions())

	ev := resolveOne(t, svc, song)
	if ev.State != cover.StateResolved || ev.URL != "/music/cache/covers/song.jpg" {
		t.Fatalf("event = %+v", ev)
	}
	if got := f.fetched(); len(got) != 0 {
		t.Fatalf("stored outcome downloaded again: %v", got)
	}
	if got := f.revalidated(); len(got) != 1 {
		t.Fatalf("revalidations = %v, want one", got)
	}
}

func TestCoverService_StaleOutcomeFallsBack(t *testing.T) {
	outcomes, _ := store.NewOutcomeStore("", store.Options{})
	outcomes.Set(movie.Key(), "/v/old/cache/videothumbnail/movie.jpg", movie)

	f := newFakeFetcher("/v/cache/videothumbnail/movie.jpg")
	svc := newTestService(t, f, outcomes, testOptions())

	ev := resolveOne(t, svc, movie)
	if ev.State != cover.StateResolved || ev.URL != "/v/cache/videothumbnail/movie.jpg" {
		t.Fatalf("event = %+v", ev)
	}
	if u, _ := outcomes.Get(movie.Key()); u != "/v/cache/videothumbnail/movie.jpg" {
		t.Fatalf("stored outcome = %q, want the fresh url", u)
	}
}

func TestCoverService_SkipsEntriesWithoutCovers(t *testing.T) {
	svc := newTestService(t, newFakeFetcher(), nil, testOptions())

	events := svc.ResolveAll(context.Background(), []domain.Entry{
		{URI: "/p/a.gif", Name: "a.gif"},
		{URI: "/p/readme.txt", Name: "readme.txt"},
	})
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}

type fixedElement visibility.Rect

func (e fixedElement) Bounds() visibility.Rect { return visibility.Rect(e) }

func TestCoverService_GateDrivenResolution(t *testing.T) {
	f := newFakeFetcher("/music/cache/covers/song.jpg")
	opts := testOptions()
	opts.Viewport = func() visibility.Rect { return visibility.Rect{Bottom: 100, Right: 100} }
	svc := newTestService(t, f, nil, opts)

	svc.Register(song, fixedElement{Top: 0, Bottom: 20, Right: 100})
	svc.Register(domain.Entry{URI: "/p/x.txt", Name: "x.txt"}, fixedElement{})
	svc.Gate().Enable()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-svc.Events():
			if ev.State == cover.StateResolved {
				if ev.URL != "/music/cache/covers/song.jpg" {
					t.Fatalf("resolved %q", ev.URL)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no resolved event")
		}
	}
}

func TestCoverService_NavigateResetsState(t *testing.T) {
	f := newFakeFetcher()
	svc := newTestService(t, f, nil, testOptions())

	resolveOne(t, svc, song)
	if !svc.Resolver().IsFailedURL("/music/cache/covers/song.jpg") {
		t.Fatalf("failure not recorded")
	}

	svc.Navigate()
	if svc.Resolver().IsFailedURL("/music/cache/covers/song.jpg") {
		t.Fatalf("Navigate() kept the negative cache")
	}
	if state, _ := svc.Status(song); state != cover.StateUnresolved {
		t.Fatalf("Status() after Navigate = %s", state)
	}
}

func TestCoverService_ExhaustedEntryAdmittedOnce(t *testing.T) {
	f := newFakeFetcher()
	opts := testOptions()
	opts.Gate.MinJitter, opts.Gate.MaxJitter = 5*time.Millisecond, 5*time.Millisecond
	opts.Viewport = func() visibility.Rect { return visibility.Rect{Bottom: 100, Right: 100} }
	svc := newTestService(t, f, nil, opts)

	svc.Register(song, fixedElement{Top: 0, Bottom: 20, Right: 100})
	svc.Gate().Enable()

	exhausted := 0
	settle := time.After(2 * time.Second)
	quiet := time.After(500 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-svc.Events():
			if ev.State == cover.StateExhausted {
				exhausted++
			}
		case <-quiet:
			done = true
		case <-settle:
			t.Fatalf("timed out")
		}
	}

	if exhausted != 1 {
		t.Fatalf("exhausted events = %d, want 1", exhausted)
	}
	if got := len(f.fetched()); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
	if got := svc.Gate().Loading(); got != 0 {
		t.Fatalf("Loading() = %d, want the slot released", got)
	}

	svc.Gate().CheckAll()
	select {
	case ev := <-svc.Events():
		t.Fatalf("unexpected event after CheckAll: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
