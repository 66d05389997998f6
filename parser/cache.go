package parser

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of distinct selector strings kept parsed.
const DefaultCacheSize = 512

// Cache memoizes Parse. Selector trees are resolved once per page and per
// array element, so the same handful of strings is parsed many times.
// Failed parses are not cached.
type Cache struct {
	specs *lru.Cache[string, Spec]
}

// NewCache builds a cache holding up to size parsed specs.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	specs, err := lru.New[string, Spec](size)
	if err != nil {
		return nil, fmt.Errorf("create selector cache: %w", err)
	}
	return &Cache{specs: specs}, nil
}

// Parse returns the cached spec for input, parsing it on a miss.
// The returned spec shares its Filters slice with the cache and must not be
// modified.
func (c *Cache) Parse(input string) (Spec, error) {
	if c == nil {
		return Parse(input)
	}
	if spec, ok := c.specs.Get(input); ok {
		return spec, nil
	}
	spec, err := Parse(input)
	if err != nil {
		return Spec{}, err
	}
	c.specs.Add(input, spec)
	return spec, nil
}

// Len reports the number of cached specs.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.specs.Len()
}
