// Package pipeline drains crawl results into JSON streams and files.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

// ErrSinkClosed is returned by Send after the final page was written.
var ErrSinkClosed = errors.New("pipeline: sink closed")

// Sink receives the result of each crawled page. last is true for the final
// page; a sink writes its terminator then.
type Sink interface {
	Send(v any, last bool) error
}

// ArrayStream writes the pages of a paginated crawl as one JSON array.
// Sequence results are spread into it, other results become one element.
type ArrayStream struct {
	w       io.Writer
	mu      sync.Mutex
	started bool
	wrote   bool
	closed  bool
}

func NewArrayStream(w io.Writer) *ArrayStream {
	return &ArrayStream{w: w}
}

func (s *ArrayStream) Send(v any, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	var b strings.Builder
	if !s.started {
		b.WriteString("[\n")
		s.started = true
	}
	frag, err := fragment(v)
	if err != nil {
		return err
	}
	if frag != "" {
		if s.wrote {
			b.WriteString(",\n")
		}
		b.WriteString(frag)
		s.wrote = true
	}
	if last {
		b.WriteString("\n]\n")
		s.closed = true
	}

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("write array stream: %w", err)
	}
	return nil
}

// fragment renders v as array elements: a sequence loses its brackets, nil
// and empty sequences render as nothing.
func fragment(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}
	if !isSequence(v) || len(out) < 2 || out[0] != '[' {
		return string(out), nil
	}
	inner := strings.Trim(string(out[1:len(out)-1]), "\n")
	if strings.TrimSpace(inner) == "" {
		return "", nil
	}
	return inner, nil
}

func isSequence(v any) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// ObjectStream writes a single-page result as one JSON value.
type ObjectStream struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

func NewObjectStream(w io.Writer) *ObjectStream {
	return &ObjectStream{w: w}
}

func (s *ObjectStream) Send(v any, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	out = append(out, '\n')
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("write object stream: %w", err)
	}
	s.closed = last
	return nil
}

// Tee sends every page to all sinks, continuing past failures.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Send(v any, last bool) error {
	var errs []error
	for _, s := range t {
		if err := s.Send(v, last); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(any, bool) error { return nil }
