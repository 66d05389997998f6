// Package xray assembles the scheduler, driver, loader and resolver into an
// extraction engine and runs crawls against it.
package xray

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-xray/config"
	"github.com/aluiziolira/go-xray/driver"
	"github.com/aluiziolira/go-xray/filter"
	"github.com/aluiziolira/go-xray/parser"
	"github.com/aluiziolira/go-xray/resolve"
	"github.com/aluiziolira/go-xray/scheduler"
	"github.com/aluiziolira/go-xray/source"
)

// Engine owns the scheduler and filter table shared by every crawl it
// creates.
type Engine struct {
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	resolver  *resolve.Resolver
	loader    *source.Loader
	logger    *slog.Logger
}

type options struct {
	cfg     *config.Config
	filters filter.Table
	driver  scheduler.Driver
	metrics *scheduler.Metrics
	headers http.Header
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithConfig replaces config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithFilters installs filters. Repeated calls merge, later names winning.
// The table is copied; changing it afterwards has no effect on the engine.
func WithFilters(t filter.Table) Option {
	return func(o *options) { o.filters = o.filters.Merge(t) }
}

// WithDriver replaces the default colly HTTP driver.
func WithDriver(d scheduler.Driver) Option {
	return func(o *options) { o.driver = d }
}

func WithMetrics(m *scheduler.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) Option {
	return func(o *options) { o.headers = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New validates the configuration and wires an engine.
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.filters == nil {
		o.filters = filter.Table{}
	}
	if o.driver == nil {
		o.driver = driver.NewHTTP(
			driver.WithUserAgent(o.cfg.UserAgent),
			driver.WithLogger(o.logger),
		)
	}

	specs, err := parser.NewCache(o.cfg.SpecCacheSize)
	if err != nil {
		return nil, err
	}

	schedOpts := []scheduler.Option{
		scheduler.WithDriver(o.driver),
		scheduler.WithLogger(o.logger),
	}
	if o.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(o.metrics))
	}
	sched := scheduler.New(o.cfg, schedOpts...)

	r := resolve.New(o.filters,
		resolve.WithParallelism(o.cfg.Parallelism),
		resolve.WithSpecCache(specs),
		resolve.WithLogger(o.logger),
	)

	loaderOpts := []source.Option{source.WithLogger(o.logger)}
	if o.headers != nil {
		loaderOpts = append(loaderOpts, source.WithHeaders(o.headers))
	}

	return &Engine{
		cfg:       o.cfg,
		scheduler: sched,
		resolver:  r,
		loader:    source.NewLoader(r, sched, loaderOpts...),
		logger:    o.logger,
	}, nil
}

func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

func (e *Engine) Resolver() *resolve.Resolver { return e.resolver }

func (e *Engine) Metrics() *scheduler.Metrics { return e.scheduler.Metrics() }

// SetConcurrency and the setters below tune the shared scheduler and return
// the engine for chaining.
func (e *Engine) SetConcurrency(n int) *Engine {
	e.scheduler.SetConcurrency(n)
	return e
}

func (e *Engine) Concurrency() int { return e.scheduler.Concurrency() }

func (e *Engine) SetThrottle(n int, per time.Duration) *Engine {
	e.scheduler.SetThrottle(n, per)
	return e
}

func (e *Engine) Throttle() (int, time.Duration) { return e.scheduler.Throttle() }

func (e *Engine) SetDelay(lo, hi time.Duration) *Engine {
	e.scheduler.SetDelay(lo, hi)
	return e
}

func (e *Engine) Delay() (time.Duration, time.Duration) { return e.scheduler.Delay() }

func (e *Engine) SetTimeout(d time.Duration) *Engine {
	e.scheduler.SetTimeout(d)
	return e
}

func (e *Engine) Timeout() time.Duration { return e.scheduler.Timeout() }

func (e *Engine) SetDriver(d scheduler.Driver) *Engine {
	e.scheduler.SetDriver(d)
	return e
}

func (e *Engine) Driver() scheduler.Driver { return e.scheduler.Driver() }

// SetJobLimit caps the fetches admitted across all crawls of the engine.
// It is independent of Crawl.SetLimit, which counts pages of one crawl.
func (e *Engine) SetJobLimit(n int) *Engine {
	e.scheduler.SetLimit(n)
	return e
}

func (e *Engine) JobLimit() int { return e.scheduler.Limit() }

// Abort stops every crawl of the engine before its next page fetch.
func (e *Engine) Abort() *Engine {
	e.scheduler.Abort()
	return e
}

func (e *Engine) Aborted() bool { return e.scheduler.Aborted() }

// Crawl prepares a crawl from one to three arguments: selector; source or
// scope, then selector; or source, scope and selector. With two arguments
// the first is a source when it is a URL, markup or a document, and a scope
// otherwise. The selector may be anything resolve.Build accepts.
func (e *Engine) Crawl(args ...any) (*Crawl, error) {
	src, scope, selector, err := assignParameters(args)
	if err != nil {
		return nil, err
	}
	s, ok := source.From(src)
	if !ok {
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
	node, err := resolve.Build(selector)
	if err != nil {
		return nil, fmt.Errorf("build selector: %w", err)
	}

	c := &Crawl{
		engine: e,
		src:    s,
		scope:  scope,
		node:   node,
		limit:  e.cfg.PageLimit,
	}
	if e.cfg.Paginate != "" {
		c.paginate = source.PaginateSelector(e.cfg.Paginate)
	}
	return c, nil
}

// MustCrawl is like Crawl but panics on error. It suits selector trees
// written as literals, such as crawls embedded in another selector tree.
func (e *Engine) MustCrawl(args ...any) *Crawl {
	c, err := e.Crawl(args...)
	if err != nil {
		panic(err)
	}
	return c
}

func assignParameters(args []any) (src any, scope string, selector any, err error) {
	switch len(args) {
	case 1:
		return nil, "", args[0], nil
	case 2:
		if source.Explicit(args[0]) {
			return args[0], "", args[1], nil
		}
		scope, err = scopeArg(args[0])
		return nil, scope, args[1], err
	case 3:
		scope, err = scopeArg(args[1])
		return args[0], scope, args[2], err
	default:
		return nil, "", nil, fmt.Errorf("crawl takes 1 to 3 arguments, got %d", len(args))
	}
}

func scopeArg(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("scope must be a string, got %T", v)
	}
}
