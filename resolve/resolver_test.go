package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/go-xray/document"
	"github.com/aluiziolira/go-xray/filter"
)

const tagsHTML = `<ul class="tags"><li>a</li><li>b</li><li>c</li></ul><ul class="tags"><li>d</li><li>e</li></ul>`

const itemsHTML = `
<div class="items">
  <div class="item">
    <h2>first item</h2>
    <ul class="tags"><li>a</li><li>b</li><li>c</li></ul>
  </div>
  <div class="item">
    <h2>second item</h2>
    <ul class="tags"><li>d</li><li>e</li></ul>
  </div>
</div>`

// scoped is a minimal embedded extractor that resolves node under scope
// against whatever document it is handed.
type scoped struct {
	r     *Resolver
	scope string
	node  Node
}

func (s scoped) Extract(ctx context.Context, doc *document.Document) (any, error) {
	return s.r.Resolve(ctx, doc, s.scope, s.node)
}

func load(t *testing.T, markup string) *document.Document {
	t.Helper()
	doc, err := document.Load(markup, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func plainResult(v any) any { return plain(v) }

func TestResolveScopedList(t *testing.T) {
	r := New(nil)
	got, err := r.Resolve(context.Background(), load(t, tagsHTML), ".tags", ListOf(Selector("li")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{"a", "b", "c", "d", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestResolveGroupedLists(t *testing.T) {
	r := New(nil)
	got, err := r.Resolve(context.Background(), load(t, tagsHTML), ".tags", ListOf(ListOf(Selector("li"))))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{[]any{"a", "b", "c"}, []any{"d", "e"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestResolveFilters(t *testing.T) {
	doc := load(t, `<h3> All Tags </h3><ul class="tags"><li> a</li><li> b </li><li>c </li></ul><ul class="tags"><li>`+"\n"+`d</li><li>e</li></ul>`)
	node, err := Map(
		"title", "h3 | trim | reverse | slice: 0 4",
		"tags", []any{".tags > li | trim"},
	)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	got, err := New(filter.Standard()).Resolve(context.Background(), doc, "", node)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]any{
		"title": "sgaT",
		"tags":  []any{"a", "b", "c", "d", "e"},
	}
	if !reflect.DeepEqual(plainResult(got), want) {
		t.Fatalf("got %#v, want %#v", plainResult(got), want)
	}
}

func TestResolveUnknownFilter(t *testing.T) {
	_, err := New(filter.Standard()).Resolve(context.Background(), load(t, "<h1>x</h1>"), "", Selector("h1 | shout"))
	var unknown *filter.UnknownFilterError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFilterError, got %v", err)
	}
}

func TestResolveCollectionsWithinCollections(t *testing.T) {
	r := New(nil)
	item, err := Map(
		"title", "h2",
		"tags", Embed(scoped{r: r, scope: ".tags", node: ListOf(Selector("li"))}),
	)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	got, err := r.Resolve(context.Background(), load(t, itemsHTML), ".item", ListOf(item))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{
		map[string]any{"title": "first item", "tags": []any{"a", "b", "c"}},
		map[string]any{"title": "second item", "tags": []any{"d", "e"}},
	}
	if !reflect.DeepEqual(plainResult(got), want) {
		t.Fatalf("got %#v, want %#v", plainResult(got), want)
	}
}

func TestResolveEmbeddedPerElement(t *testing.T) {
	doc := load(t, `
<body>
  <div class="tag"><a>A</a><a>B</a><a>C</a></div>
  <div class="tag"><a>D</a><a>E</a><a>F</a></div>
</body>`)
	r := New(nil)
	node := ListOf(Embed(scoped{r: r, scope: "a", node: ListOf(Selector("@text"))}))

	got, err := r.Resolve(context.Background(), doc, ".tag", node)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{[]any{"A", "B", "C"}, []any{"D", "E", "F"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestResolveRootMatchAttribute(t *testing.T) {
	doc, err := document.Load(`<a href="/one">1</a><a href="http://other.org/two">2</a>`, "http://example.com/")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	node, _ := Map("link", "@href")

	got, err := New(nil).Resolve(context.Background(), doc, "a", ListOf(node))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{
		map[string]any{"link": "http://example.com/one"},
		map[string]any{"link": "http://other.org/two"},
	}
	if !reflect.DeepEqual(plainResult(got), want) {
		t.Fatalf("got %#v, want %#v", plainResult(got), want)
	}
}

func TestResolveScopedSingle(t *testing.T) {
	doc := load(t, `<html><head><title>Google</title></head><body><title>decoy</title></body></html>`)
	r := New(nil)

	got, err := r.Resolve(context.Background(), doc, "head", Selector("title"))
	if err != nil || got != "Google" {
		t.Fatalf("got %v, %v", got, err)
	}

	// An attribute-only selector uses the scope as its path.
	got, err = r.Resolve(context.Background(), doc, "title", Selector("@text"))
	if err != nil || got != "Google" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestResolveSparseMapping(t *testing.T) {
	node, _ := Map(
		"title", "h1",
		"missing", ".nope",
		"link", ".nope@href",
		"html", ".nope@html",
	)
	got, err := New(nil).Resolve(context.Background(), load(t, "<h1>Hello</h1>"), "", node)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rec := got.(*Record)
	if !reflect.DeepEqual(rec.Keys(), []string{"title"}) {
		t.Fatalf("keys=%v", rec.Keys())
	}
}

func TestResolveEmptyCollections(t *testing.T) {
	r := New(nil)
	doc := load(t, itemsHTML)
	item, _ := Map("title", "h2")
	ctx := context.Background()

	for _, scope := range []string{".nope", ""} {
		got, err := r.Resolve(ctx, doc, scope, ListOf(item))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if list, ok := got.([]any); !ok || len(list) != 0 {
			t.Fatalf("scope %q: got %#v, want empty list", scope, got)
		}
	}

	// Elements whose records come out empty are dropped.
	empty, _ := Map("x", ".nope")
	got, err := r.Resolve(ctx, doc, ".item", ListOf(empty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list := got.([]any); len(list) != 0 {
		t.Fatalf("got %#v, want empty list", list)
	}

	got, err = r.Resolve(ctx, doc, "", ListOf(Selector(".nope")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list := got.([]any); len(list) != 0 {
		t.Fatalf("got %#v, want empty list", list)
	}
}

func TestResolveCallbackPerElement(t *testing.T) {
	var cb Callback = func(_ context.Context, doc *document.Document) (any, error) {
		return strings.ToUpper(doc.Select("h2").Text()), nil
	}

	got, err := New(nil, WithParallelism(1)).Resolve(context.Background(), load(t, itemsHTML), ".item", ListOf(cb))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []any{"FIRST ITEM", "SECOND ITEM"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestResolveCallbackError(t *testing.T) {
	boom := errors.New("boom")
	var cb Callback = func(context.Context, *document.Document) (any, error) { return nil, boom }

	_, err := New(nil).Resolve(context.Background(), load(t, itemsHTML), ".item", ListOf(cb))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Resolve(ctx, load(t, "<h1>x</h1>"), "", Selector("h1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResolveRecordKeepsOrder(t *testing.T) {
	node, _ := Map("z", "h1", "a", "p")
	got, err := New(nil).Resolve(context.Background(), load(t, "<h1>H</h1><p>P</p>"), "", node)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"z":"H","a":"P"}` {
		t.Fatalf("json=%s", out)
	}
}

func TestBuild(t *testing.T) {
	node, err := Build(map[string]any{
		"title": "h1",
		"links": []any{"a@href"},
		"items": []any{map[string]any{"name": "a"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := Mapping{
		{Key: "items", Node: List{Of: Mapping{{Key: "name", Node: Selector("a")}}}},
		{Key: "links", Node: List{Of: Selector("a@href")}},
		{Key: "title", Node: Selector("h1")},
	}
	if !reflect.DeepEqual(node, want) {
		t.Fatalf("got %#v, want %#v", node, want)
	}

	if node, err := Build([]string{"li"}); err != nil || !reflect.DeepEqual(node, List{Of: Selector("li")}) {
		t.Fatalf("got %#v, %v", node, err)
	}
}

func TestBuildErrors(t *testing.T) {
	for _, v := range []any{nil, 42, []any{}, []any{"a", "b"}, map[string]any{"x": 1.5}} {
		if _, err := Build(v); err == nil {
			t.Fatalf("build(%#v): expected error", v)
		}
	}

	var unresolvable *UnresolvableSelectorError
	if _, err := Build(42); !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableSelectorError, got %v", err)
	}
}

func TestDecodeYAML(t *testing.T) {
	def := []byte(`
title: h1 | trim
links: ["a@href"]
items:
  - name: a
    price: .price | float
`)
	node, err := DecodeYAML(def)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Mapping{
		{Key: "title", Node: Selector("h1 | trim")},
		{Key: "links", Node: List{Of: Selector("a@href")}},
		{Key: "items", Node: List{Of: Mapping{
			{Key: "name", Node: Selector("a")},
			{Key: "price", Node: Selector(".price | float")},
		}}},
	}
	if !reflect.DeepEqual(node, want) {
		t.Fatalf("got %#v, want %#v", node, want)
	}

	if node, err := DecodeYAML([]byte(`".tags li"`)); err != nil || node != Selector(".tags li") {
		t.Fatalf("scalar: %#v, %v", node, err)
	}
}

func TestDecodeYAMLErrors(t *testing.T) {
	for _, def := range []string{"", "links: [a, b]", "title: [unclosed"} {
		if _, err := DecodeYAML([]byte(def)); err == nil {
			t.Fatalf("decode %q: expected error", def)
		}
	}
}
