// Package document wraps parsed HTML for selector queries.
package document

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var urlPattern = regexp.MustCompile(`^(?:\w+:)?//([^\s.]+\.\S{2}|localhost[:?\d]*)\S*$`)

// linkAttrs lists the element/attribute pairs rewritten to absolute URLs.
var linkAttrs = []struct{ selector, attr string }{
	{"a[href]", "href"},
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"source[src]", "src"},
	{"track[src]", "src"},
	{"frame[src]", "src"},
	{"iframe[src]", "src"},
}

// Document is a queryable HTML tree. The root may be a whole page or a
// fragment selected from one.
type Document struct {
	sel *goquery.Selection
	url string
}

// Load parses markup. When pageURL is set, relative link attributes are
// resolved against it, or against <base href> when the page declares one.
func Load(markup, pageURL string) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := &Document{sel: gq.Selection, url: pageURL}
	if pageURL != "" {
		absolutize(gq.Selection, pageURL)
	}
	return doc, nil
}

// Empty returns a document with no content.
func Empty() *Document {
	doc, _ := Load("", "")
	return doc
}

// FromSelection wraps an existing selection without re-parsing it.
func FromSelection(sel *goquery.Selection, pageURL string) *Document {
	if sel == nil {
		return Empty()
	}
	return &Document{sel: sel, url: pageURL}
}

// Selection returns the root selection.
func (d *Document) Selection() *goquery.Selection { return d.sel }

// URL returns the address the document was loaded from, if any.
func (d *Document) URL() string { return d.url }

// Select matches selector against the root itself first and falls back to
// its descendants. An empty selector matches nothing.
func (d *Document) Select(selector string) *goquery.Selection {
	return Query(d.sel, selector)
}

// Find matches selector against descendants of the root only.
func (d *Document) Find(selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return none(d.sel)
	}
	return d.sel.Find(selector)
}

// Query applies root-match semantics to sel: if sel itself matches selector
// it is returned, otherwise its matching descendants are.
func Query(sel *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return none(sel)
	}
	if sel.Is(selector) {
		return sel
	}
	return sel.Find(selector)
}

func none(sel *goquery.Selection) *goquery.Selection {
	return sel.FilterFunction(func(int, *goquery.Selection) bool { return false })
}

// Read extracts attr from the first node of sel. "text" and "html" are
// pseudo-attributes. A missing attribute, or html of an empty selection,
// reads as nil; text of an empty selection reads as "".
func Read(sel *goquery.Selection, attr string) any {
	switch attr {
	case "", "text":
		if sel.Length() == 0 {
			return ""
		}
		return sel.First().Text()
	case "html":
		if sel.Length() == 0 {
			return nil
		}
		h, err := sel.First().Html()
		if err != nil {
			return nil
		}
		return h
	default:
		v, ok := sel.First().Attr(attr)
		if !ok {
			return nil
		}
		return v
	}
}

// IsURL reports whether s looks like an absolute or protocol-relative URL.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// IsHTML reports whether s looks like markup.
func IsHTML(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")
}

func absolutize(root *goquery.Selection, pageURL string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	if href, ok := root.Find("head base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	for _, la := range linkAttrs {
		root.Find(la.selector).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(la.attr)
			if strings.Contains(v, "://") {
				return
			}
			ref, err := url.Parse(v)
			if err != nil {
				return
			}
			s.SetAttr(la.attr, base.ResolveReference(ref).String())
		})
	}
}
