package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Defaults mirror a polite background loader: one fetch at a time, a pause
// between fetches and a jittered admission.
const (
	DefaultMaxConcurrent = 1
	DefaultDelayBetween  = 300 * time.Millisecond
	DefaultMinJitter     = 100 * time.Millisecond
	DefaultMaxJitter     = 500 * time.Millisecond
)

// Fetcher performs the network side of a task.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
	Exists(ctx context.Context, url string) (bool, error)
}

// Config controls throughput.
type Config struct {
	MaxConcurrent int
	DelayBetween  time.Duration
	MinJitter     time.Duration
	MaxJitter     time.Duration
}

// DefaultConfig returns the default throughput limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: DefaultMaxConcurrent,
		DelayBetween:  DefaultDelayBetween,
		MinJitter:     DefaultMinJitter,
		MaxJitter:     DefaultMaxJitter,
	}
}

// Task is one queued download. OnDone is called exactly once unless the
// scheduler is closed first, in which case it is never called.
type Task struct {
	URL   string
	Entry domain.Entry

	// Revalidate replaces the download with an existence check, used for
	// outcomes remembered from an earlier session.
	Revalidate bool

	OnDone func(Result)
}

// Result is the outcome of a task.
type Result struct {
	URL    string
	Entry  domain.Entry
	Err    error
	Shared bool // another task for the same URL performed the fetch
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Queued     int
	Active     int
	PeakActive int
	Completed  int
}

// Scheduler is a FIFO download queue admitted under a global concurrency
// budget. Fetches for the same normalized URL are collapsed into one.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	// cbMu is held for reading while a callback runs; Close takes it for
	// writing so no callback starts or runs once Close returns
	cbMu sync.RWMutex

	mu        sync.Mutex
	queue     []Task
	active    int
	peak      int
	completed int
	closed    bool
}

// New creates a running scheduler.
func New(cfg Config, fetcher Fetcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxJitter < cfg.MinJitter {
		cfg.MaxJitter = cfg.MinJitter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue queues a task and schedules a jittered admission attempt.
// It returns false when the scheduler is closed; the task is dropped.
func (s *Scheduler) Enqueue(t Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	if d := s.jitter(); d > 0 {
		time.AfterFunc(d, s.pump)
	} else {
		s.pump()
	}
	return true
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:     len(s.queue),
		Active:     s.active,
		PeakActive: s.peak,
		Completed:  s.completed,
	}
}

// Close discards queued tasks without calling them back and cancels
// in-flight fetches, whose callbacks are suppressed. It waits for callbacks
// already running, so it must not be called from one.
func (s *Scheduler) Close() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	if dropped > 0 {
		s.logger.Debug("scheduler closed", "dropped", dropped)
	}
}

// Wait blocks until every admitted task has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// pump admits queued tasks while the concurrency budget allows.
func (s *Scheduler) pump() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && s.active < s.cfg.MaxConcurrent && len(s.queue) > 0 {
		t := s.queue[0]
		s.queue[0] = Task{}
		s.queue = s.queue[1:]

		s.active++
		if s.active > s.peak {
			s.peak = s.active
		}
		s.wg.Add(1)
		go s.run(t)
	}
}

func (s *Scheduler) run(t Task) {
	defer s.wg.Done()

	key := cover.NormalizeURL(t.URL)
	fn := func() (interface{}, error) {
		return nil, s.fetcher.Fetch(s.ctx, t.URL)
	}
	if t.Revalidate {
		key = "head:" + key
		fn = func() (interface{}, error) {
			ok, err := s.fetcher.Exists(s.ctx, t.URL)
			if err == nil && !ok {
				err = domain.ErrStaleOutcome
			}
			return nil, err
		}
	}
	ch := s.group.DoChan(key, fn)

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-s.ctx.Done():
		s.release(false)
		return
	}

	s.cbMu.RLock()
	if s.isClosed() {
		s.cbMu.RUnlock()
		s.release(false)
		return
	}
	if res.Err != nil {
		s.logger.Debug("cover fetch failed", "url", t.URL, "error", res.Err)
	}
	if t.OnDone != nil {
		t.OnDone(Result{URL: t.URL, Entry: t.Entry, Err: res.Err, Shared: res.Shared})
	}
	s.cbMu.RUnlock()

	if s.cfg.DelayBetween > 0 {
		timer := time.NewTimer(s.cfg.DelayBetween)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
		}
	}
	s.release(true)
	s.pump()
}

func (s *Scheduler) release(done bool) {
	s.mu.Lock()
	s.active--
	if done {
		s.completed++
	}
	s.mu.Unlock()
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) jitter() time.Duration {
	span := s.cfg.MaxJitter - s.cfg.MinJitter
	if span <= 0 {
		return s.cfg.MinJitter
	}
	return s.cfg.MinJitter + rand.N(span+1)
}
