package keyutil

import "testing"

func TestKeyOfField_NoArgs(t *testing.T) {
	if got := KeyOfField("todos", nil); got != "todos" {
		t.Fatalf("got %q", got)
	}
	if got := KeyOfField("todos", map[string]any{}); got != "todos" {
		t.Fatalf("got %q", got)
	}
}

func TestKeyOfField_OrderIndependent(t *testing.T) {
	a := KeyOfField("todos", map[string]any{"first": 10, "after": "cursor"})
	b := KeyOfField("todos", map[string]any{"after": "cursor", "first": 10})
	if a != b {
		t.Fatalf("expected equal keys, got %q vs %q", a, b)
	}
}

func TestKeyOfField_NestedObjectsSorted(t *testing.T) {
	a := KeyOfField("search", map[string]any{
		"filter": map[string]any{"b": 2, "a": 1},
	})
	b := KeyOfField("search", map[string]any{
		"filter": map[string]any{"a": 1, "b": 2},
	})
	if a != b {
		t.Fatalf("expected equal keys, got %q vs %q", a, b)
	}
}

func TestKeyOfField_NullVsMissing(t *testing.T) {
	withNull := KeyOfField("todos", map[string]any{"filter": nil})
	if withNull != `todos({"filter":null})` {
		t.Fatalf("got %q", withNull)
	}
}

func TestJoinKeys_Injective(t *testing.T) {
	a := JoinKeys("Todo:1", "creator")
	b := JoinKeys("Todo:1.creator", "")
	if a == b {
		t.Fatalf("expected distinct keys, got %q for both", a)
	}
}
