// Package scheduler dispatches fetch jobs to a transport driver under a
// concurrency cap, a throttle, a randomized delay and a per-job timeout.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-xray/config"
	"github.com/aluiziolira/go-xray/models"
)

// Driver performs one fetch. Non-2xx statuses are returned as responses, not
// errors.
type Driver interface {
	Do(ctx context.Context, req *models.Request) (*models.Response, error)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(ctx context.Context, req *models.Request) (*models.Response, error)

func (f DriverFunc) Do(ctx context.Context, req *models.Request) (*models.Response, error) {
	return f(ctx, req)
}

// Scheduler is shared by every crawl launched from one engine. All methods
// are safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	driver      Driver
	concurrency int
	slots       *semaphore.Weighted
	limiter     *rate.Limiter
	throttleN   int
	throttlePer time.Duration
	delayMin    time.Duration
	delayMax    time.Duration
	timeout     time.Duration
	limit       int
	admitted    int
	aborted     bool
	abortCh     chan struct{}
	rng         *rand.Rand

	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithDriver(d Driver) Option {
	return func(s *Scheduler) { s.driver = d }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRand sets the source used for delay jitter.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// New builds a scheduler from cfg. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) *Scheduler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Scheduler{
		limiter: rate.NewLimiter(rate.Inf, 1),
		abortCh: make(chan struct{}),
		logger:  slog.Default(),
	}
	s.setConcurrencyLocked(cfg.Concurrency)
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.SetThrottle(cfg.ThrottleRequests, cfg.ThrottlePer)
	s.SetDelay(cfg.DelayMin, cfg.DelayMax)
	s.SetTimeout(cfg.Timeout)
	s.SetLimit(cfg.JobLimit)
	return s
}

// Metrics returns the scheduler's collectors.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// SetConcurrency caps how many jobs may await a response at once. Zero or
// less removes the cap. Jobs already holding a slot keep it.
func (s *Scheduler) SetConcurrency(n int) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConcurrencyLocked(n)
	return s
}

func (s *Scheduler) setConcurrencyLocked(n int) {
	if n <= 0 {
		s.concurrency = 0
		s.slots = semaphore.NewWeighted(math.MaxInt64)
		return
	}
	s.concurrency = n
	s.slots = semaphore.NewWeighted(int64(n))
}

// Concurrency returns the cap, or 0 when unlimited.
func (s *Scheduler) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concurrency
}

// SetThrottle allows at most n dispatches in any window of length per.
// Dispatches are spaced evenly at per/n. n <= 0 or per <= 0 disables it.
func (s *Scheduler) SetThrottle(n int, per time.Duration) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || per <= 0 {
		s.throttleN, s.throttlePer = 0, 0
		s.limiter = rate.NewLimiter(rate.Inf, 1)
		return s
	}
	s.throttleN, s.throttlePer = n, per
	s.limiter = rate.NewLimiter(Per(n, per), 1)
	return s
}

// Throttle returns the configured request count and window.
func (s *Scheduler) Throttle() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttleN, s.throttlePer
}

// Per converts "eventCount per duration" into a rate limit.
func Per(eventCount int, duration time.Duration) rate.Limit {
	return rate.Every(duration / time.Duration(eventCount))
}

// SetDelay adds a random delay in [lo, hi] before each dispatch. hi below
// lo is raised to lo.
func (s *Scheduler) SetDelay(lo, hi time.Duration) *Scheduler {
	lo = max(lo, 0)
	hi = max(hi, lo)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayMin, s.delayMax = lo, hi
	return s
}

// Delay returns the delay bounds.
func (s *Scheduler) Delay() (time.Duration, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayMin, s.delayMax
}

// SetTimeout bounds how long a dispatched job may wait for the driver. Zero
// means no timeout.
func (s *Scheduler) SetTimeout(d time.Duration) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = max(d, 0)
	return s
}

func (s *Scheduler) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Scheduler) SetDriver(d Driver) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver = d
	return s
}

func (s *Scheduler) Driver() Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

// SetLimit caps the total number of jobs ever admitted. Zero means no cap.
func (s *Scheduler) SetLimit(n int) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = max(n, 0)
	return s
}

func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Admitted returns how many jobs have been admitted so far.
func (s *Scheduler) Admitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admitted
}

// Abort rejects all future jobs and releases jobs still waiting to dispatch.
// Jobs already dispatched run to completion.
func (s *Scheduler) Abort() *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aborted {
		s.aborted = true
		close(s.abortCh)
	}
	return s
}

func (s *Scheduler) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Fetch admits req and sleeps the jitter delay before taking a slot. Holding
// the slot, it waits on the throttle and dispatches req to the driver.
func (s *Scheduler) Fetch(ctx context.Context, req *models.Request) (*models.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		s.metrics.IncJob("rejected")
		return nil, ErrAborted
	}
	if s.limit > 0 && s.admitted >= s.limit {
		s.mu.Unlock()
		s.metrics.IncJob("rejected")
		return nil, ErrLimitReached
	}
	s.admitted++
	slots, limiter, driver, timeout, abortCh := s.slots, s.limiter, s.driver, s.timeout, s.abortCh
	s.mu.Unlock()

	s.metrics.IncJob("admitted")
	s.metrics.addWaiting(1)
	waiting := true
	doneWaiting := func() {
		if waiting {
			waiting = false
			s.metrics.addWaiting(-1)
		}
	}
	defer doneWaiting()

	// The jitter delay does not hold a slot.
	if err := s.sleep(ctx, abortCh, s.jitter(), nil); err != nil {
		return nil, err
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer slots.Release(1)

	// The throttle reservation is the last wait before dispatch, so no other
	// wait can push dispatches closer together than the limiter allows.
	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	if err := s.sleep(ctx, abortCh, reservation.DelayFrom(now), reservation); err != nil {
		return nil, err
	}
	doneWaiting()

	return s.dispatch(ctx, driver, req, timeout)
}

func (s *Scheduler) dispatch(ctx context.Context, driver Driver, req *models.Request, timeout time.Duration) (*models.Response, error) {
	if driver == nil {
		return nil, ErrNoDriver
	}

	s.metrics.IncJob("dispatched")
	s.metrics.addInflight(1)
	defer s.metrics.addInflight(-1)
	s.logger.Debug("fetching", slog.String("url", req.URL))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		resp *models.Response
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		resp, err := driver.Do(jobCtx, req)
		done <- result{resp: resp, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-done:
		s.metrics.ObserveDuration(time.Since(start))
		if r.err != nil {
			err := transportError(req.URL, r.err)
			s.fail(err)
			return nil, err
		}
		if r.resp == nil {
			err := transportError(req.URL, errNilResponse)
			s.fail(err)
			return nil, err
		}
		if r.resp.Request == nil {
			r.resp.Request = req
		}
		if r.resp.Status >= 400 {
			s.metrics.IncError(errorTypeLabel(nil, r.resp.Status))
		}
		s.metrics.IncJob("completed")
		s.logger.Debug("got response",
			slog.String("url", req.URL),
			slog.Int("status", r.resp.Status),
		)
		return r.resp, nil
	case <-expired:
		err := &ErrJobTimedOut{URL: req.URL, After: timeout}
		s.fail(err)
		return nil, err
	case <-ctx.Done():
		s.fail(ctx.Err())
		return nil, ctx.Err()
	}
}

func (s *Scheduler) fail(err error) {
	label := errorTypeLabel(err, 0)
	s.metrics.IncJob("failed")
	s.metrics.IncError(label)
	s.logger.Debug("job failed", slog.String("category", label), slog.Any("error", err))
}

// sleep waits for d unless ctx ends or the scheduler aborts first. A
// pending reservation is returned to the limiter when the wait is cut short.
func (s *Scheduler) sleep(ctx context.Context, abortCh <-chan struct{}, d time.Duration, reservation *rate.Reservation) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if reservation != nil {
			reservation.CancelAt(time.Now())
		}
		return ctx.Err()
	case <-abortCh:
		if reservation != nil {
			reservation.CancelAt(time.Now())
		}
		return ErrAborted
	}
}

func (s *Scheduler) jitter() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	span := s.delayMax - s.delayMin
	if span <= 0 {
		return s.delayMin
	}
	var n int64
	if s.rng != nil {
		n = s.rng.Int64N(int64(span) + 1)
	} else {
		n = rand.Int64N(int64(span) + 1)
	}
	return s.delayMin + time.Duration(n)
}
