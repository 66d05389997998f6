// Package models defines data structures shared by the scheduler, drivers and
// the source loader.
package models

import (
	"net/http"
	"time"
)

// RequestHTML is the Request.Type of a page fetch.
const RequestHTML = "html"

// Request is one fetch job handed to a transport driver.
type Request struct {
	URL     string
	Headers http.Header
	// Type is the kind of resource requested. Custom drivers may branch on it.
	Type string
}

// Response is what a transport driver returns for a Request. Status may be
// any HTTP status; only transport failures are errors.
type Response struct {
	Request *Request
	Status  int
	Headers http.Header
	Body    []byte
	// URL is the effective address after redirects.
	URL string
}

// EffectiveURL returns the final URL, falling back to the requested one.
func (r *Response) EffectiveURL() string {
	if r.URL != "" {
		return r.URL
	}
	if r.Request != nil {
		return r.Request.URL
	}
	return ""
}

// CrawlSummary holds the overall result of a crawl.
type CrawlSummary struct {
	StartTime time.Time
	EndTime   time.Time
	// Pages lists the page URLs visited in order. A crawl that starts from
	// markup or a document records an empty entry for its first page.
	Pages     []string
	ItemCount int
	Aborted   bool
	LimitHit  bool
	Err       error
}

// Duration returns the wall time of the crawl.
func (s *CrawlSummary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
