package reader

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/otterscale/graphcache/internal/schema"
	"github.com/otterscale/graphcache/internal/store"
	"github.com/otterscale/graphcache/internal/writer"
)

func mustParse(t *testing.T, src string) *ast.QueryDocument {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: src})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return doc
}

func TestRead_RoundTrip(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { todos { id text creator { id name } } }`)
	written := map[string]any{
		"todos": []any{
			map[string]any{
				"__typename": "Todo",
				"id":         "1",
				"text":       "buy milk",
				"creator":    map[string]any{"__typename": "User", "id": "9", "name": "ada"},
			},
		},
	}
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: doc}, written); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Partial {
		t.Fatal("expected a fully-cached read to be non-partial")
	}
	want := map[string]any{
		"__typename": "Query",
		"todos": []any{
			map[string]any{
				"__typename": "Todo",
				"id":         "1",
				"text":       "buy milk",
				"creator":    map[string]any{"__typename": "User", "id": "9", "name": "ada"},
			},
		},
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_ListOfEmbeddedObjectsRoundTrips(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { sections { title } }`)
	written := map[string]any{
		"sections": []any{
			map[string]any{"title": "intro"},
			map[string]any{"title": "body"},
		},
	}
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: doc}, written); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Partial {
		t.Fatal("expected a fully-cached read to be non-partial")
	}
	want := map[string]any{
		"__typename": "Query",
		"sections": []any{
			map[string]any{"title": "intro"},
			map[string]any{"title": "body"},
		},
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("embedded list round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_MissWithoutOracleYieldsNilData(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { todos { id text } }`)
	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Data != nil {
		t.Fatalf("expected nil data on uncached read without oracle, got %#v", result.Data)
	}
	if result.Partial {
		t.Fatal("without an oracle, misses must not be reported as partial")
	}
}

type stubOracle struct {
	nullable map[string]bool
}

func (o *stubOracle) IsFieldNullable(typename, fieldName string) bool {
	return o.nullable[typename+"."+fieldName]
}
func (o *stubOracle) IsInterfaceOfType(typeCondition, concrete string) bool {
	return typeCondition == concrete
}
func (o *stubOracle) FieldReturnType(typename, fieldName string) (string, bool) { return "", false }
func (o *stubOracle) IsObjectType(typename string) bool                        { return true }
func (o *stubOracle) ConcreteTypes(typename string) []string                   { return []string{typename} }

var _ schema.Oracle = (*stubOracle)(nil)

func TestRead_SchemaDrivenPartial(t *testing.T) {
	oracle := &stubOracle{nullable: map[string]bool{"Todo.text": true}}
	s := store.New(store.Config{Oracle: oracle})

	// Write only id, leaving text uncached.
	doc := mustParse(t, `query { todos { id text } }`)
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: mustParse(t, `query { todos { id } }`)}, map[string]any{
		"todos": []any{map[string]any{"__typename": "Todo", "id": "1"}},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial=true with a nullable uncached field")
	}
	todos, ok := result.Data["todos"].([]any)
	if !ok || len(todos) != 1 {
		t.Fatalf("unexpected data: %#v", result.Data)
	}
	todo := todos[0].(map[string]any)
	if todo["text"] != nil {
		t.Fatalf("expected text to be filled with nil, got %#v", todo["text"])
	}
}

func TestRead_DependenciesIncludeRootFieldKey(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { todos { id } }`)
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: doc}, map[string]any{
		"todos": []any{map[string]any{"__typename": "Todo", "id": "1"}},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := result.Dependencies["Query.todos"]; !ok {
		t.Fatalf("expected Query.todos in dependencies, got %v", result.Dependencies)
	}
	if _, ok := result.Dependencies["Todo:1"]; !ok {
		t.Fatalf("expected Todo:1 in dependencies, got %v", result.Dependencies)
	}
}

func TestRead_ViewerRootOverwrite(t *testing.T) {
	s := store.New(store.Config{})

	if _, err := writer.Write(context.Background(), s, writer.Request{Document: mustParse(t, `query { int }`)}, map[string]any{
		"__typename": "Query",
		"int":        42,
	}); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	mutateDoc := mustParse(t, `mutation { mutate { viewer { int } } }`)
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: mutateDoc}, map[string]any{
		"__typename": "Mutation",
		"mutate": map[string]any{
			"__typename": "MutateResult",
			"viewer":     map[string]any{"__typename": "Query", "int": 43},
		},
	}); err != nil {
		t.Fatalf("mutation write: %v", err)
	}

	result, err := Read(context.Background(), s, Request{Document: mustParse(t, `query { int }`)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Partial {
		t.Fatal("expected non-partial read")
	}
	want := map[string]any{"__typename": "Query", "int": 43}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("viewer overwrite mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_ResolverSuppliesEntityKey(t *testing.T) {
	s := store.New(store.Config{
		Resolvers: map[string]map[string]store.Resolver{
			"Query": {"todo": func(parent, args map[string]any, f *store.ReadFacade, ctx context.Context) any {
				id, _ := args["id"].(string)
				return "Todo:" + id
			}},
		},
	})
	writeDoc := mustParse(t, `query { todos { id text } }`)
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: writeDoc}, map[string]any{
		"todos": []any{map[string]any{"__typename": "Todo", "id": "1", "text": "buy milk"}},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	readDoc := mustParse(t, `query { todo(id: "1") { id text } }`)
	result, err := Read(context.Background(), s, Request{Document: readDoc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Partial {
		t.Fatal("expected non-partial read")
	}
	todo, ok := result.Data["todo"].(map[string]any)
	if !ok || todo["text"] != "buy milk" {
		t.Fatalf("unexpected data: %#v", result.Data)
	}
}

func TestRead_ResolverMissingFallsBackToStore(t *testing.T) {
	s := store.New(store.Config{
		Resolvers: map[string]map[string]store.Resolver{
			"Query": {"todos": func(parent, args map[string]any, f *store.ReadFacade, ctx context.Context) any {
				return store.Missing
			}},
		},
	})
	doc := mustParse(t, `query { todos { id } }`)
	if _, err := writer.Write(context.Background(), s, writer.Request{Document: doc}, map[string]any{
		"todos": []any{map[string]any{"__typename": "Todo", "id": "1"}},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	result, err := Read(context.Background(), s, Request{Document: doc})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Partial {
		t.Fatal("expected non-partial read")
	}
	todos, ok := result.Data["todos"].([]any)
	if !ok || len(todos) != 1 {
		t.Fatalf("expected store fallback to find the written todo, got %#v", result.Data)
	}
}
