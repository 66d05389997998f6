package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-xray/document"
	"github.com/aluiziolira/go-xray/filter"
	"github.com/aluiziolira/go-xray/parser"
)

// Resolver evaluates selector trees. It is safe for concurrent use.
type Resolver struct {
	filters     filter.Table
	specs       *parser.Cache
	parallelism int
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithParallelism caps how many list elements resolve at once. Zero or less
// means no cap.
func WithParallelism(n int) Option {
	return func(r *Resolver) { r.parallelism = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSpecCache shares a parsed-selector cache between resolvers.
func WithSpecCache(c *parser.Cache) Option {
	return func(r *Resolver) { r.specs = c }
}

// New returns a resolver applying filters from table.
func New(table filter.Table, opts ...Option) *Resolver {
	r := &Resolver{
		filters: table,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.specs == nil {
		if c, err := parser.NewCache(parser.DefaultCacheSize); err == nil {
			r.specs = c
		}
	}
	if r.filters == nil {
		r.filters = filter.Table{}
	}
	return r
}

// Filters returns the filter table in use.
func (r *Resolver) Filters() filter.Table { return r.filters }

// Resolve evaluates node against doc. scope, when set, is the CSS selector
// the node is evaluated under.
func (r *Resolver) Resolve(ctx context.Context, doc *document.Document, scope string, node Node) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = document.Empty()
	}

	switch n := node.(type) {
	case Selector:
		return r.leaf(doc, rootScope(scope), string(n), false)
	case List:
		return r.list(ctx, doc, scope, n)
	case Mapping:
		return r.mapping(ctx, doc, scope, n)
	case Embedded:
		if n.Extractor == nil {
			return nil, &UnresolvableSelectorError{Value: node}
		}
		return n.Extractor.Extract(ctx, doc)
	case Callback:
		if n == nil {
			return nil, &UnresolvableSelectorError{Value: node}
		}
		return n(ctx, doc)
	default:
		return nil, &UnresolvableSelectorError{Value: node}
	}
}

// Value resolves a single unscoped selector, as used for link following and
// pagination.
func (r *Resolver) Value(doc *document.Document, selector string) (any, error) {
	if doc == nil {
		doc = document.Empty()
	}
	return r.leaf(doc, "", selector, false)
}

func (r *Resolver) mapping(ctx context.Context, doc *document.Document, scope string, m Mapping) (any, error) {
	rec := NewRecord()
	for _, f := range m {
		v, err := r.Resolve(ctx, doc, scope, f.Node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Key, err)
		}
		if v == nil || v == "" {
			continue
		}
		rec.Set(f.Key, v)
	}
	return rec, nil
}

func (r *Resolver) list(ctx context.Context, doc *document.Document, scope string, l List) (any, error) {
	switch of := l.Of.(type) {
	case Selector:
		return r.leaf(doc, rootScope(scope), string(of), true)
	case Mapping, List, Callback, Embedded:
		return r.each(ctx, doc, scope, of)
	default:
		return nil, &UnresolvableSelectorError{Value: l.Of}
	}
}

// each resolves node once per element matching scope, in parallel, and
// drops empty results while keeping element order.
func (r *Resolver) each(ctx context.Context, doc *document.Document, scope string, node Node) (any, error) {
	els := doc.Find(scope)
	if els.Length() == 0 {
		return []any{}, nil
	}

	results := make([]any, els.Length())
	g, gctx := errgroup.WithContext(ctx)
	if r.parallelism > 0 {
		g.SetLimit(r.parallelism)
	}
	els.Each(func(i int, el *goquery.Selection) {
		g.Go(func() error {
			v, err := r.Resolve(gctx, document.FromSelection(el, doc.URL()), scope, node)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return compact(results), nil
}

func (r *Resolver) leaf(doc *document.Document, scope, selector string, list bool) (any, error) {
	spec, err := r.specs.Parse(selector)
	if err != nil {
		return nil, err
	}
	attr := spec.Attr()
	path := spec.Path
	if path == "" {
		path, scope = scope, ""
	}

	if !list {
		var match *goquery.Selection
		if scope != "" {
			match = doc.Select(scope).Find(path).First()
		} else {
			match = doc.Select(path).First()
		}
		v, err := r.filters.Apply(document.Read(match, attr), spec.Filters)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("resolved", "scope", scope, "selector", selector, "value", v)
		return v, nil
	}

	var raw []any
	collect := func(_ int, s *goquery.Selection) {
		if v := document.Read(s, attr); v != nil {
			raw = append(raw, v)
		}
	}
	if scope != "" {
		doc.Select(scope).Each(func(_ int, el *goquery.Selection) {
			document.Query(el, path).Each(collect)
		})
	} else {
		doc.Select(path).Each(collect)
	}

	out := make([]any, 0, len(raw))
	for _, v := range raw {
		fv, err := r.filters.Apply(v, spec.Filters)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	r.logger.Debug("resolved list", "scope", scope, "selector", selector, "count", len(out))
	return out, nil
}

// rootScope drops scopes that cannot be queried: link-following scopes such
// as "a@href" and URLs.
func rootScope(scope string) string {
	if strings.Contains(scope, "@") || document.IsURL(scope) {
		return ""
	}
	return scope
}

func compact(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !isEmpty(v) {
			out = append(out, v)
		}
	}
	return out
}

// isEmpty reports falsy values: nil, "", false, zero or NaN numbers, and
// zero-length sequences, maps or records.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case float64:
		return t == 0 || math.IsNaN(t)
	case *Record:
		return t.Len() == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}
