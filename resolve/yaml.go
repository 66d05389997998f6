package resolve

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML builds a selector tree from a YAML definition. Scalars are
// selectors, one-element sequences are lists and mappings keep their key
// order:
//
//	title: h1 | trim
//	links: ["a@href"]
//	items:
//	  - name: a
//	    price: .price | float
//
// Scoping is not part of the tree; the caller passes it to Resolve.
func DecodeYAML(data []byte) (Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode selector definition: %w", err)
	}
	if root.Kind == 0 {
		return nil, fmt.Errorf("decode selector definition: empty document")
	}
	return fromYAML(&root)
}

func fromYAML(n *yaml.Node) (Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("line %d: expected a single definition", n.Line)
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.ScalarNode:
		return Selector(n.Value), nil
	case yaml.SequenceNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("line %d: list selector needs exactly one element, got %d", n.Line, len(n.Content))
		}
		of, err := fromYAML(n.Content[0])
		if err != nil {
			return nil, err
		}
		return List{Of: of}, nil
	case yaml.MappingNode:
		m := make(Mapping, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be strings", key.Line)
			}
			node, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key.Value, err)
			}
			m = append(m, Field{Key: key.Value, Node: node})
		}
		return m, nil
	default:
		return nil, &UnresolvableSelectorError{Value: n}
	}
}
