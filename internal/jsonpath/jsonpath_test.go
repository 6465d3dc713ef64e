package jsonpath

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "single", path: "total", want: []string{"total"}},
		{name: "dotted", path: "vendor.name", want: []string{"vendor", "name"}},
		{name: "indexed", path: "items[2].price", want: []string{"items", "2", "price"}},
		{name: "leading index", path: "[0].name", want: []string{"0", "name"}},
		{name: "double dots", path: "a..b", want: []string{"a", "b"}},
		{name: "trailing bracket", path: "items[3]", want: []string{"items", "3"}},
		{name: "trimmed", path: " total ", want: []string{"total"}},
		{name: "empty", path: "", want: []string{}},
		{name: "only separators", path: ".[].", want: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Split(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSetCreatesIntermediateObjects(t *testing.T) {
	doc := map[string]any{"total": 10.0}

	got, err := Set(doc, Split("vendor.address.city"), "Berlin")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	vendor, ok := got["vendor"].(map[string]any)
	if !ok {
		t.Fatalf("expected vendor object, got %T", got["vendor"])
	}
	address, ok := vendor["address"].(map[string]any)
	if !ok || address["city"] != "Berlin" {
		t.Fatalf("unexpected address: %#v", vendor["address"])
	}
	if got["total"] != 10.0 {
		t.Fatalf("sibling field changed: %#v", got["total"])
	}
}

func TestSetArrayIndex(t *testing.T) {
	doc := map[string]any{
		"items": []any{
			map[string]any{"price": 1.0},
			map[string]any{"price": 2.0},
		},
	}

	got, err := Set(doc, Split("items[1].price"), 5.5)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	items := got["items"].([]any)
	if items[1].(map[string]any)["price"] != 5.5 {
		t.Fatalf("expected price 5.5, got %#v", items[1])
	}

	got, err = Set(got, Split("items[9]"), map[string]any{"price": 3.0})
	if err != nil {
		t.Fatalf("Set append: %v", err)
	}
	if n := len(got["items"].([]any)); n != 3 {
		t.Fatalf("expected appended item, got %d items", n)
	}
}

func TestSetRejectsEmptyPath(t *testing.T) {
	if _, err := Set(map[string]any{}, nil, 1); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	doc := map[string]any{
		"vendor": map[string]any{"name": "Acme", "tax_id": "X1"},
		"items":  []any{"a", "b", "c"},
	}

	got, removed := Delete(doc, Split("vendor.tax_id"))
	if !removed {
		t.Fatalf("expected removal")
	}
	if _, ok := got["vendor"].(map[string]any)["tax_id"]; ok {
		t.Fatalf("tax_id still present")
	}

	got, removed = Delete(got, Split("items[1]"))
	if !removed {
		t.Fatalf("expected array removal")
	}
	if !reflect.DeepEqual(got["items"], []any{"a", "c"}) {
		t.Fatalf("unexpected items: %#v", got["items"])
	}

	if _, removed := Delete(got, Split("missing.path")); removed {
		t.Fatalf("missing path should be a no-op")
	}
}

func TestFlatten(t *testing.T) {
	doc := map[string]any{
		"total":  42.0,
		"vendor": map[string]any{"name": "Acme"},
		"items":  []any{map[string]any{"sku": "A"}},
	}

	got := Flatten(doc)
	want := []Leaf{
		{Path: "items.0.sku", Value: "A"},
		{Path: "total", Value: 42.0},
		{Path: "vendor.name", Value: "Acme"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten = %#v, want %#v", got, want)
	}
}
