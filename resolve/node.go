// Package resolve evaluates selector trees against documents.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/aluiziolira/go-xray/document"
)

// Node is one node of a selector tree. The concrete types are Selector,
// List, Mapping, Embedded and Callback.
type Node interface {
	isNode()
}

// Selector is a leaf selector expression such as "a@href | trim".
type Selector string

// List asks for every match instead of the first. Of is the element node.
type List struct {
	Of Node
}

// Field is one named entry of a Mapping.
type Field struct {
	Key  string
	Node Node
}

// Mapping resolves each field in order into a Record.
type Mapping []Field

// Extractor is a fully configured extraction that can run against an
// existing document instead of fetching its own.
type Extractor interface {
	Extract(ctx context.Context, doc *document.Document) (any, error)
}

// Embedded delegates to another extractor with the current document.
// A tree that embeds an extractor inside itself recurses until ctx is done.
type Embedded struct {
	Extractor Extractor
}

// Callback is invoked with the current document, or once per element when
// wrapped in a List.
type Callback func(ctx context.Context, doc *document.Document) (any, error)

func (Selector) isNode() {}
func (List) isNode()     {}
func (Mapping) isNode()  {}
func (Embedded) isNode() {}
func (Callback) isNode() {}

// ListOf wraps n in a List.
func ListOf(n Node) List { return List{Of: n} }

// Map builds a Mapping from alternating key/node pairs, keeping their order.
func Map(pairs ...any) (Mapping, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("map: odd number of arguments")
	}
	m := make(Mapping, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("map: key %v is not a string", pairs[i])
		}
		node, err := Build(pairs[i+1])
		if err != nil {
			return nil, fmt.Errorf("map %q: %w", key, err)
		}
		m = append(m, Field{Key: key, Node: node})
	}
	return m, nil
}

// Embed wraps an extractor as a node. An extractor that embeds itself recurses
// until ctx is done; nothing detects the cycle.
func Embed(e Extractor) Embedded { return Embedded{Extractor: e} }

// UnresolvableSelectorError reports a selector tree value of no known shape.
type UnresolvableSelectorError struct {
	Value any
}

func (e *UnresolvableSelectorError) Error() string {
	return fmt.Sprintf("can't resolve selector of type %T", e.Value)
}

// Build converts a native value into a selector tree. Strings become
// Selectors, one-element slices become Lists, maps become Mappings (keys in
// sorted order; use Map or a Record to keep a specific order), Extractors
// become Embedded nodes and matching funcs become Callbacks.
func Build(v any) (Node, error) {
	switch t := v.(type) {
	case nil:
		return nil, &UnresolvableSelectorError{Value: v}
	case Node:
		return t, nil
	case string:
		return Selector(t), nil
	case []string:
		if len(t) != 1 {
			return nil, fmt.Errorf("list selector needs exactly one element, got %d", len(t))
		}
		return List{Of: Selector(t[0])}, nil
	case []any:
		if len(t) != 1 {
			return nil, fmt.Errorf("list selector needs exactly one element, got %d", len(t))
		}
		of, err := Build(t[0])
		if err != nil {
			return nil, err
		}
		return List{Of: of}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(Mapping, 0, len(keys))
		for _, k := range keys {
			node, err := Build(t[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m = append(m, Field{Key: k, Node: node})
		}
		return m, nil
	case map[string]string:
		conv := make(map[string]any, len(t))
		for k, s := range t {
			conv[k] = s
		}
		return Build(conv)
	case *Record:
		m := make(Mapping, 0, t.Len())
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			node, err := Build(val)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m = append(m, Field{Key: k, Node: node})
		}
		return m, nil
	case Extractor:
		return Embedded{Extractor: t}, nil
	case func(context.Context, *document.Document) (any, error):
		return Callback(t), nil
	default:
		return nil, &UnresolvableSelectorError{Value: v}
	}
}
