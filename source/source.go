// Package source turns crawl inputs into documents and computes the next
// page of a paginated crawl.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-xray/document"
	"github.com/aluiziolira/go-xray/models"
	"github.com/aluiziolira/go-xray/resolve"
)

// Kind identifies what a Source holds.
type Kind int

const (
	None Kind = iota
	URL
	Markup
	Doc
)

func (k Kind) String() string {
	switch k {
	case URL:
		return "url"
	case Markup:
		return "markup"
	case Doc:
		return "document"
	default:
		return "none"
	}
}

// Source is the starting point of a crawl: a URL to fetch, markup to parse or
// an already parsed document.
type Source struct {
	kind   Kind
	url    string
	markup string
	doc    *document.Document
}

func FromURL(u string) Source { return Source{kind: URL, url: u} }

func FromMarkup(m string) Source { return Source{kind: Markup, markup: m} }

func FromDocument(d *document.Document) Source {
	if d == nil {
		return Source{}
	}
	return Source{kind: Doc, doc: d}
}

func (s Source) Kind() Kind { return s.kind }

// URL returns the address of a URL source, or the document URL of a Doc.
func (s Source) URL() string {
	switch s.kind {
	case URL:
		return s.url
	case Doc:
		return s.doc.URL()
	}
	return ""
}

// From converts a native value into a Source. Strings that look like URLs
// become URL sources; any other non-empty string is treated as markup.
func From(v any) (Source, bool) {
	switch t := v.(type) {
	case nil:
		return Source{}, true
	case Source:
		return t, true
	case string:
		switch {
		case t == "":
			return Source{}, true
		case document.IsURL(t):
			return FromURL(t), true
		default:
			return FromMarkup(t), true
		}
	case *document.Document:
		return FromDocument(t), true
	case *goquery.Document:
		if t == nil {
			return Source{}, true
		}
		pageURL := ""
		if t.Url != nil {
			pageURL = t.Url.String()
		}
		return FromDocument(document.FromSelection(t.Selection, pageURL)), true
	case *goquery.Selection:
		if t == nil {
			return Source{}, true
		}
		return FromDocument(document.FromSelection(t, "")), true
	default:
		return Source{}, false
	}
}

// Explicit reports whether v is unambiguously a source: a URL, markup or a
// document. Plain strings that are neither are selectors or scopes.
func Explicit(v any) bool {
	switch t := v.(type) {
	case Source:
		return true
	case string:
		return document.IsURL(t) || document.IsHTML(t)
	case *document.Document, *goquery.Document, *goquery.Selection:
		return true
	default:
		return false
	}
}

// Fetcher dispatches fetch jobs. *scheduler.Scheduler implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req *models.Request) (*models.Response, error)
}

// Loader produces the document a crawl page is resolved against.
type Loader struct {
	resolver *resolve.Resolver
	fetcher  Fetcher
	headers  http.Header
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHeaders adds headers to every fetch.
func WithHeaders(h http.Header) Option {
	return func(l *Loader) { l.headers = h.Clone() }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoader(r *resolve.Resolver, f Fetcher, opts ...Option) *Loader {
	l := &Loader{
		resolver: r,
		fetcher:  f,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the document for src. A URL source is fetched. Otherwise a
// scope containing "@" is resolved against the source to a link, which is
// fetched when it is a URL; a link that is not a URL yields an empty
// document. Markup is parsed, a document is used as is, and anything else
// yields an empty document.
func (l *Loader) Load(ctx context.Context, src Source, scope string) (*document.Document, error) {
	switch {
	case src.kind == URL:
		l.logger.Debug("starting at", slog.String("url", src.url))
		return l.fetch(ctx, src.url)

	case strings.Contains(scope, "@"):
		l.logger.Debug("resolving to a url", slog.String("scope", scope))
		base, err := l.local(src)
		if err != nil {
			return nil, err
		}
		v, err := l.resolver.Value(base, scope)
		if err != nil {
			return nil, err
		}
		link, _ := v.(string)
		if !document.IsURL(link) {
			l.logger.Debug("not a url, skipping", slog.String("scope", scope), slog.Any("value", v))
			return document.Empty(), nil
		}
		l.logger.Debug("resolved scope to a url", slog.String("scope", scope), slog.String("url", link))
		return l.fetch(ctx, link)

	case src.kind == Markup || src.kind == Doc:
		return l.local(src)
	}
	l.logger.Debug("not a url or html, skipping")
	return document.Empty(), nil
}

func (l *Loader) local(src Source) (*document.Document, error) {
	switch src.kind {
	case Markup:
		return document.Load(src.markup, "")
	case Doc:
		return src.doc, nil
	default:
		return document.Empty(), nil
	}
}

func (l *Loader) fetch(ctx context.Context, pageURL string) (*document.Document, error) {
	if l.fetcher == nil {
		return nil, fmt.Errorf("fetch %s: no fetcher configured", pageURL)
	}
	resp, err := l.fetcher.Fetch(ctx, &models.Request{URL: pageURL, Headers: l.headers.Clone(), Type: models.RequestHTML})
	if err != nil {
		return nil, err
	}
	if resp.Status >= http.StatusBadRequest {
		l.logger.Warn("error status, resolving body anyway",
			slog.Int("status", resp.Status),
			slog.String("url", pageURL),
		)
	}
	return document.Load(string(resp.Body), resp.EffectiveURL())
}
