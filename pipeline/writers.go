package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
)

// JSONLines writes newline-delimited JSON: one line per item, where a
// sequence page contributes one item per element.
type JSONLines struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
	count   int
}

// NewJSONLines wraps w. Close flushes but does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	buffer := bufio.NewWriter(w)
	return &JSONLines{
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}
}

// NewJSONLinesFile creates filename, and its directory if needed.
func NewJSONLinesFile(filename string) (*JSONLines, error) {
	f, err := CreateFile(filename)
	if err != nil {
		return nil, err
	}
	jl := NewJSONLines(f)
	jl.file = f
	return jl, nil
}

// Send appends the items of one page and flushes them.
func (jw *JSONLines) Send(v any, _ bool) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, item := range items(v) {
		if err := jw.encoder.Encode(item); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.count++
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Count returns the number of lines written.
func (jw *JSONLines) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.count
}

// Close flushes buffers and closes the underlying file, if owned.
func (jw *JSONLines) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if jw.file == nil {
		return nil
	}
	return jw.file.Close()
}

func items(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// CreateFile creates filename for writing, making parent directories.
func CreateFile(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
