package xray

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aluiziolira/go-xray/document"
	"github.com/aluiziolira/go-xray/models"
	"github.com/aluiziolira/go-xray/pipeline"
	"github.com/aluiziolira/go-xray/resolve"
	"github.com/aluiziolira/go-xray/scheduler"
	"github.com/aluiziolira/go-xray/source"
)

// Crawl is a prepared extraction: a source, an optional scope and a selector
// tree, plus pagination settings. A Crawl can be run any number of times,
// concurrently, and embedded in another selector tree.
type Crawl struct {
	engine *Engine
	src    source.Source
	scope  string
	node   resolve.Node

	mu       sync.Mutex
	paginate source.Pagination
	limit    int
	abort    source.AbortFunc
	summary  *models.CrawlSummary
}

// SetPaginate sets the rule yielding the next page URL.
func (c *Crawl) SetPaginate(p source.Pagination) *Crawl {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paginate = p
	return c
}

// SetPaginateSelector paginates by following selector, e.g. ".next@href".
func (c *Crawl) SetPaginateSelector(selector string) *Crawl {
	return c.SetPaginate(source.PaginateSelector(selector))
}

func (c *Crawl) Paginate() source.Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paginate
}

// SetLimit caps the pages of one run. Zero or less removes the cap.
func (c *Crawl) SetLimit(n int) *Crawl {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	return c
}

func (c *Crawl) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// SetAbort installs a predicate that ends pagination when it returns true.
func (c *Crawl) SetAbort(fn source.AbortFunc) *Crawl {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abort = fn
	return c
}

func (c *Crawl) AbortFunc() source.AbortFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abort
}

// SetConcurrency and the other scheduler setters act on the engine's shared
// scheduler, so they affect every crawl of the engine.
func (c *Crawl) SetConcurrency(n int) *Crawl {
	c.engine.SetConcurrency(n)
	return c
}

func (c *Crawl) Concurrency() int { return c.engine.Concurrency() }

func (c *Crawl) SetThrottle(n int, per time.Duration) *Crawl {
	c.engine.SetThrottle(n, per)
	return c
}

func (c *Crawl) Throttle() (int, time.Duration) { return c.engine.Throttle() }

func (c *Crawl) SetDelay(lo, hi time.Duration) *Crawl {
	c.engine.SetDelay(lo, hi)
	return c
}

func (c *Crawl) Delay() (time.Duration, time.Duration) { return c.engine.Delay() }

func (c *Crawl) SetTimeout(d time.Duration) *Crawl {
	c.engine.SetTimeout(d)
	return c
}

func (c *Crawl) Timeout() time.Duration { return c.engine.Timeout() }

func (c *Crawl) SetDriver(d scheduler.Driver) *Crawl {
	c.engine.SetDriver(d)
	return c
}

func (c *Crawl) Driver() scheduler.Driver { return c.engine.Driver() }

// Summary returns the outcome of the most recent run, or nil before any.
func (c *Crawl) Summary() *models.CrawlSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return nil
	}
	s := *c.summary
	s.Pages = append([]string(nil), c.summary.Pages...)
	return &s
}

// Run crawls from the configured source. It returns the result of the page
// when pagination is off, and the accumulated pages when it is on.
func (c *Crawl) Run(ctx context.Context) (any, error) {
	return c.run(ctx, c.src, pipeline.Discard)
}

// RunFrom crawls from src instead of the configured source. src may be
// anything source.From accepts.
func (c *Crawl) RunFrom(ctx context.Context, src any) (any, error) {
	s, ok := source.From(src)
	if !ok {
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
	return c.run(ctx, s, pipeline.Discard)
}

// RunWith crawls from the configured source and sends every page to sink.
func (c *Crawl) RunWith(ctx context.Context, sink pipeline.Sink) (any, error) {
	if sink == nil {
		sink = pipeline.Discard
	}
	return c.run(ctx, c.src, sink)
}

// Extract runs the crawl against doc, making a Crawl usable as a node of
// another selector tree.
func (c *Crawl) Extract(ctx context.Context, doc *document.Document) (any, error) {
	return c.run(ctx, source.FromDocument(doc), pipeline.Discard)
}

// Stream runs the crawl in the background and returns its output as JSON:
// an array filled page by page when paginating, a single value otherwise.
// A failed crawl surfaces as a read error. Closing the reader early fails
// the crawl at its next write.
func (c *Crawl) Stream(ctx context.Context) io.ReadCloser {
	pr, pw := io.Pipe()
	sink := c.streamSink(pw)
	go func() {
		_, err := c.run(ctx, c.src, sink)
		pw.CloseWithError(err)
	}()
	return pr
}

// Write runs the crawl, writing the same JSON as Stream to w.
func (c *Crawl) Write(ctx context.Context, w io.Writer) (any, error) {
	return c.run(ctx, c.src, c.streamSink(w))
}

// WriteFile runs the crawl, writing the same JSON as Stream to path.
func (c *Crawl) WriteFile(ctx context.Context, path string) (any, error) {
	f, err := pipeline.CreateFile(path)
	if err != nil {
		return nil, err
	}
	result, err := c.Write(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		return nil, fmt.Errorf("close %s: %w", path, cerr)
	}
	return result, err
}

func (c *Crawl) streamSink(w io.Writer) pipeline.Sink {
	if c.Paginate().Enabled() {
		return pipeline.NewArrayStream(w)
	}
	return pipeline.NewObjectStream(w)
}

func (c *Crawl) run(ctx context.Context, src source.Source, sink pipeline.Sink) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	paginate, limit, abort := c.paginate, c.limit, c.abort
	c.mu.Unlock()

	remaining := limit
	if remaining <= 0 {
		remaining = math.MaxInt
	}
	logger := c.engine.logger
	loader, resolver := c.engine.loader, c.engine.resolver

	summary := &models.CrawlSummary{StartTime: time.Now()}
	defer func() {
		summary.EndTime = time.Now()
		c.mu.Lock()
		c.summary = summary
		c.mu.Unlock()
	}()
	fail := func(err error) (any, error) {
		summary.Err = err
		return nil, err
	}

	pages := []any{}
	page := 1
	for {
		doc, err := loader.Load(ctx, src, c.scope)
		if err != nil {
			return fail(err)
		}
		summary.Pages = append(summary.Pages, doc.URL())

		result, err := resolver.Resolve(ctx, doc, c.scope, c.node)
		if err != nil {
			return fail(err)
		}
		pages = appendPage(pages, result)

		remaining--
		page++
		next, err := loader.NextURL(doc, paginate, remaining, result, abort, page)
		if err != nil {
			return fail(err)
		}
		if next != "" && c.engine.Aborted() {
			logger.Debug("engine aborted, ending", slog.String("url", next))
			summary.Aborted = true
			next = ""
		}

		if next != "" {
			if err := sink.Send(result, false); err != nil {
				return fail(err)
			}
			src = source.FromURL(next)
			continue
		}

		summary.LimitHit = paginate.Enabled() && remaining <= 0
		summary.ItemCount = len(pages)
		if err := sink.Send(result, true); err != nil {
			return fail(err)
		}
		logger.Debug("crawl done",
			slog.Int("pages", len(summary.Pages)),
			slog.Int("items", summary.ItemCount),
		)
		if paginate.Enabled() {
			return pages, nil
		}
		return result, nil
	}
}

// appendPage spreads sequence results into pages.
func appendPage(pages []any, result any) []any {
	if list, ok := result.([]any); ok {
		return append(pages, list...)
	}
	return append(pages, result)
}
