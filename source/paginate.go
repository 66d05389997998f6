package source

import (
	"log/slog"

	"github.com/aluiziolira/go-xray/document"
)

// PageFunc computes the next page URL from the number of the page about to
// be fetched and the current document.
type PageFunc func(page int, doc *document.Document) string

// Pagination is the rule yielding the next page: a selector such as
// ".next@href" or a PageFunc. The zero value disables pagination.
type Pagination struct {
	Selector string
	Func     PageFunc
}

func PaginateSelector(selector string) Pagination { return Pagination{Selector: selector} }

func PaginateFunc(fn PageFunc) Pagination { return Pagination{Func: fn} }

func (p Pagination) Enabled() bool { return p.Func != nil || p.Selector != "" }

// AbortFunc stops pagination when it returns true. It sees the result of the
// page just resolved and the candidate next URL.
type AbortFunc func(result any, nextURL string) bool

// NextURL returns the next page URL, or "" when the crawl should stop:
// pagination is off, remaining is used up, the rule yields something that is
// not a URL, or abort says so.
func (l *Loader) NextURL(doc *document.Document, p Pagination, remaining int, current any, abort AbortFunc, page int) (string, error) {
	if !p.Enabled() {
		l.logger.Debug("no paginate, ending")
		return "", nil
	}
	if remaining <= 0 {
		l.logger.Debug("reached limit, ending")
		return "", nil
	}

	var next string
	if p.Func != nil {
		next = p.Func(page, doc)
	} else {
		v, err := l.resolver.Value(doc, p.Selector)
		if err != nil {
			return "", err
		}
		next, _ = v.(string)
	}
	l.logger.Debug("paginate", slog.Int("page", page), slog.String("url", next))

	if !document.IsURL(next) {
		l.logger.Debug("not a url, finishing up", slog.String("value", next))
		return "", nil
	}
	if abort != nil && abort(current, next) {
		l.logger.Debug("abort check passed, ending", slog.String("url", next))
		return "", nil
	}
	return next, nil
}
