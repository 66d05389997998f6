// Package filter applies named value transforms to extracted selector values.
package filter

import (
	"fmt"
	"maps"

	"github.com/aluiziolira/go-xray/parser"
)

// Func transforms an extracted value. args holds the literal arguments written
// after the filter name in the selector.
type Func func(value any, args ...any) (any, error)

// Table maps filter names to their implementation. A Table is read-only once
// handed to an engine.
type Table map[string]Func

// UnknownFilterError is returned when a selector names a filter that is not
// installed.
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Name)
}

// Apply threads value through calls from left to right.
func (t Table) Apply(value any, calls []parser.FilterCall) (any, error) {
	out := value
	for _, call := range calls {
		fn, ok := t[call.Name]
		if !ok || fn == nil {
			return nil, &UnknownFilterError{Name: call.Name}
		}
		next, err := fn(out, call.Args...)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", call.Name, err)
		}
		out = next
	}
	return out, nil
}

// Merge returns a copy of t with the entries of others layered on top.
func (t Table) Merge(others ...Table) Table {
	out := make(Table, len(t))
	maps.Copy(out, t)
	for _, other := range others {
		maps.Copy(out, other)
	}
	return out
}
