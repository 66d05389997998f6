package filter

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/go-xray/parser"
)

func calls(t *testing.T, selector string) []parser.FilterCall {
	t.Helper()
	spec, err := parser.Parse(selector)
	if err != nil {
		t.Fatalf("parse %q: %v", selector, err)
	}
	return spec.Filters
}

func TestApplyComposesLeftToRight(t *testing.T) {
	table := Standard()
	for _, input := range []string{"  Tags ", "x", "", "\tabc def\n"} {
		got, err := table.Apply(input, calls(t, "h | trim | reverse"))
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		want := reverse(strings.TrimSpace(input))
		if got != want {
			t.Fatalf("trim|reverse(%q)=%q, want %q", input, got, want)
		}
	}

	got, err := table.Apply(" Tags ", calls(t, "h | trim | reverse | slice:2"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got != "aT" {
		t.Fatalf("got %q, want %q", got, "aT")
	}
}

func TestApplyUnknownFilter(t *testing.T) {
	_, err := Standard().Apply("x", calls(t, "h | trim | shout"))
	var unknown *UnknownFilterError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFilterError, got %v", err)
	}
	if unknown.Name != "shout" {
		t.Fatalf("name=%q", unknown.Name)
	}
}

func TestApplyWrapsFilterErrors(t *testing.T) {
	boom := errors.New("boom")
	table := Table{"fail": func(any, ...any) (any, error) { return nil, boom }}
	_, err := table.Apply("x", calls(t, "h | fail"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestApplyNoFilters(t *testing.T) {
	got, err := Table{}.Apply(" raw ", nil)
	if err != nil || got != " raw " {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestStandardFilters(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		selector string
		want     any
	}{
		{"lowercase", "HeLLo", "x | lowercase", "hello"},
		{"uppercase", "HeLLo", "x | uppercase", "HELLO"},
		{"reverse unicode", "añb", "x | reverse", "bña"},
		{"squash", " a \n\t b  c ", "x | squash", "a b c"},
		{"slice start", "abcdef", "x | slice:4", "ef"},
		{"slice range", "abcdef", "x | slice: 1 3", "bc"},
		{"slice negative", "abcdef", "x | slice: -2", "ef"},
		{"slice past end", "abc", "x | slice: 10", ""},
		{"replace", "a-b-c", `x | replace: "-" "+"`, "a+b+c"},
		{"split default", "a, b,,c", "x | split", []any{"a", "b", "c"}},
		{"split custom", "a/b", `x | split: "/"`, []any{"a", "b"}},
		{"int from text", "In stock (22 available)", "x | int", 22},
		{"float price", "£1,051.77", "x | float", 1051.77},
		{"non string passes", nil, "x | trim | uppercase", nil},
		{"int passes number", 3, "x | int", 3},
	}
	table := Standard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Apply(tt.value, calls(t, tt.selector))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestStandardFilterErrors(t *testing.T) {
	table := Standard()
	for _, selector := range []string{"x | int", "x | slice", "x | replace: a", "x | slice: nope"} {
		if _, err := table.Apply("no digits", calls(t, selector)); err == nil {
			t.Fatalf("%q: expected error", selector)
		}
	}
}

func TestMerge(t *testing.T) {
	base := Standard()
	custom := Table{"trim": func(v any, _ ...any) (any, error) { return "custom", nil }}
	merged := base.Merge(custom)

	if got, _ := merged.Apply(" a ", calls(t, "x | trim")); got != "custom" {
		t.Fatalf("override not applied: %v", got)
	}
	if got, _ := base.Apply(" a ", calls(t, "x | trim")); got != "a" {
		t.Fatalf("base table mutated: %v", got)
	}
}
