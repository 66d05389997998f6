package driver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-xray/models"
)

func htmlResponder(status int, body string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	}
}

func TestHTTPDoSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/page", func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("User-Agent"); got != "xray-test" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad agent "+got), nil
		}
		if got := req.Header.Get("X-Trace"); got != "abc" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "missing header"), nil
		}
		resp := httpmock.NewStringResponse(http.StatusOK, "<h1>Hello</h1>")
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	d := NewHTTP(WithTransport(transport), WithUserAgent("xray-test"))
	headers := http.Header{}
	headers.Set("X-Trace", "abc")
	req := &models.Request{URL: "http://example.test/page", Headers: headers}

	resp, err := d.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Status, resp.Body)
	}
	if string(resp.Body) != "<h1>Hello</h1>" {
		t.Fatalf("body=%q", resp.Body)
	}
	if resp.URL != req.URL || resp.Request != req {
		t.Fatalf("unexpected response metadata %+v", resp)
	}
	if resp.Headers.Get("Content-Type") != "text/html" {
		t.Fatalf("headers=%v", resp.Headers)
	}
	if headers.Get("User-Agent") != "" {
		t.Fatalf("request headers were mutated: %v", headers)
	}
}

func TestHTTPDoCallerUserAgentWins(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/page", func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(http.StatusOK, req.Header.Get("User-Agent")), nil
	})

	d := NewHTTP(WithTransport(transport), WithUserAgent("xray-test"))
	cases := []struct {
		name    string
		headers http.Header
		want    string
	}{
		{"no headers", nil, "xray-test"},
		{"other headers", http.Header{"X-Trace": {"abc"}}, "xray-test"},
		{"caller agent", http.Header{"User-Agent": {"custom/1.0"}}, "custom/1.0"},
	}
	for _, tc := range cases {
		resp, err := d.Do(context.Background(), &models.Request{URL: "http://example.test/page", Headers: tc.headers})
		if err != nil {
			t.Fatalf("%s: do: %v", tc.name, err)
		}
		if string(resp.Body) != tc.want {
			t.Fatalf("%s: user agent=%q, want %q", tc.name, resp.Body, tc.want)
		}
	}
}

func TestHTTPDoErrorStatusIsResponse(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/missing", htmlResponder(http.StatusNotFound, "<p>gone</p>"))

	resp, err := NewHTTP(WithTransport(transport)).Do(context.Background(), &models.Request{URL: "http://example.test/missing"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusNotFound || !strings.Contains(string(resp.Body), "gone") {
		t.Fatalf("unexpected response status=%d body=%q", resp.Status, resp.Body)
	}
}

func TestHTTPDoTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/down", httpmock.NewErrorResponder(boom))

	resp, err := NewHTTP(WithTransport(transport)).Do(context.Background(), &models.Request{URL: "http://example.test/down"})
	if err == nil {
		t.Fatalf("expected error, got response %+v", resp)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHTTPDoFollowsRedirects(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/old", func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", "http://example.test/new/")
		return resp, nil
	})
	transport.RegisterResponder("GET", "http://example.test/new/", htmlResponder(http.StatusOK, `<a href="next">next</a>`))

	resp, err := NewHTTP(WithTransport(transport)).Do(context.Background(), &models.Request{URL: "http://example.test/old"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status=%d", resp.Status)
	}
	if resp.URL != "http://example.test/new/" {
		t.Fatalf("effective url=%q", resp.URL)
	}
}

func TestHTTPDoRedirectLoop(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/loop", func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", "http://example.test/loop")
		return resp, nil
	})

	if _, err := NewHTTP(WithTransport(transport)).Do(context.Background(), &models.Request{URL: "http://example.test/loop"}); err == nil {
		t.Fatalf("expected redirect loop error")
	}
}

func TestHTTPDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTP().Do(ctx, &models.Request{URL: "http://example.test/"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
