// Package driver provides the default colly-backed transport for the
// scheduler.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-xray/models"
)

// MaxRedirects is the number of redirects followed before a fetch fails.
const MaxRedirects = 10

// HTTP fetches pages with a fresh colly collector per job, sharing one
// http.Transport across jobs.
type HTTP struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures an HTTP driver.
type Option func(*HTTP)

// WithTransport replaces the round tripper, e.g. with an httpmock transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(h *HTTP) { h.transport = rt }
}

func WithUserAgent(ua string) Option {
	return func(h *HTTP) { h.userAgent = ua }
}

// WithRequestTimeout bounds the HTTP exchange itself. Zero keeps colly's
// default.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *HTTP) { h.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *HTTP) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTP returns a driver using a proxy-aware transport by default.
func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Do performs a GET for req. Every HTTP status is returned as a response;
// only failures without a response are errors.
func (h *HTTP) Do(ctx context.Context, req *models.Request) (*models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var options []colly.CollectorOption
	options = append(options,
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if h.userAgent != "" {
		options = append(options, colly.UserAgent(h.userAgent))
	}
	c := colly.NewCollector(options...)
	c.WithTransport(h.transport)
	if h.timeout > 0 {
		c.SetRequestTimeout(h.timeout)
	}

	effective := req.URL
	c.SetRedirectHandler(func(r *http.Request, via []*http.Request) error {
		if len(via) >= MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", MaxRedirects)
		}
		effective = r.URL.String()
		return nil
	})

	var resp *models.Response
	c.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		resp = &models.Response{
			Request: req,
			Status:  r.StatusCode,
			Headers: headers,
			Body:    r.Body,
			URL:     effective,
		}
		if r.StatusCode >= http.StatusBadRequest {
			h.logger.Warn("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("url", effective),
			)
		}
	})

	// colly only applies its UserAgent when no header map is passed.
	hdr := req.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	if h.userAgent != "" && hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", h.userAgent)
	}

	err := c.Request(http.MethodGet, req.URL, nil, colly.NewContext(), hdr)
	if resp != nil {
		return resp, nil
	}
	if err == nil {
		err = errors.New("no response received")
	}
	return nil, fmt.Errorf("get %s: %w", req.URL, err)
}
