package writer

import (
	"context"
	"testing"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/events"
	"github.com/otterscale/graphcache/internal/store"
)

func mustParse(t *testing.T, src string) *ast.QueryDocument {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: src})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return doc
}

func TestWrite_ScalarsAndKeyedEntity(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { todos { id text creator { id name } } }`)
	result := map[string]any{
		"todos": []any{
			map[string]any{
				"__typename": "Todo",
				"id":         "1",
				"text":       "buy milk",
				"creator":    map[string]any{"__typename": "User", "id": "9", "name": "ada"},
			},
		},
	}

	deps, err := Write(context.Background(), s, Request{Document: doc}, result)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(deps) == 0 {
		t.Fatal("expected non-empty dependency set")
	}

	text, ok := s.GetRecordField("Todo:1", "text")
	if !ok || text != "buy milk" {
		t.Fatalf("got %v, %v", text, ok)
	}
	name, ok := s.GetRecordField("User:9", "name")
	if !ok || name != "ada" {
		t.Fatalf("got %v, %v", name, ok)
	}
	link, ok := s.GetLink("Todo:1.creator")
	if !ok || link != "User:9" {
		t.Fatalf("expected creator link to User:9, got %v, %v", link, ok)
	}
	rootLink, ok := s.GetLink("Query.todos")
	if !ok {
		t.Fatal("expected root link for todos")
	}
	list, ok := rootLink.([]store.Link)
	if !ok || len(list) != 1 || list[0] != "Todo:1" {
		t.Fatalf("unexpected root link shape: %#v", rootLink)
	}
}

func TestWrite_EmbeddedObjectHasNoLinkEntry(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { settings { theme } }`)
	result := map[string]any{
		"settings": map[string]any{"theme": "dark"},
	}
	if _, err := Write(context.Background(), s, Request{Document: doc}, result); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := s.GetLink("Query.settings"); ok {
		t.Fatal("embedded object must not get a link entry")
	}
	theme, ok := s.GetRecordField("Query.settings", "theme")
	if !ok || theme != "dark" {
		t.Fatalf("got %v, %v", theme, ok)
	}
}

func TestWrite_RootReuseViaNestedQueryTypename(t *testing.T) {
	s := store.New(store.Config{})

	writeDoc := mustParse(t, `query { int }`)
	if _, err := Write(context.Background(), s, Request{Document: writeDoc}, map[string]any{
		"__typename": "Query",
		"int":        42,
	}); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	mutateDoc := mustParse(t, `mutation { mutate { viewer { int } } }`)
	mutateResult := map[string]any{
		"__typename": "Mutation",
		"mutate": map[string]any{
			"__typename": "MutateResult",
			"viewer":     map[string]any{"__typename": "Query", "int": 43},
		},
	}
	if _, err := Write(context.Background(), s, Request{Document: mutateDoc}, mutateResult); err != nil {
		t.Fatalf("mutation write: %v", err)
	}

	v, ok := s.GetRecordField("Query", "int")
	if !ok || v != 43 {
		t.Fatalf("expected root Query.int == 43 after viewer write, got %v, %v", v, ok)
	}
}

func TestWrite_InvokesUpdaterWithFullResultAndArgs(t *testing.T) {
	var gotArgs map[string]any
	var gotResult map[string]any
	s := store.New(store.Config{
		Updaters: map[string]map[string]store.Updater{
			"Mutation": {"addTodo": func(result, args map[string]any, f *store.WriteFacade, ctx context.Context) {
				gotResult = result
				gotArgs = args
			}},
		},
	})
	doc := mustParse(t, `mutation { addTodo(text: "buy milk") { id text } }`)
	result := map[string]any{
		"addTodo": map[string]any{"__typename": "Todo", "id": "1", "text": "buy milk"},
	}
	if _, err := Write(context.Background(), s, Request{Document: doc}, result); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if gotResult == nil {
		t.Fatal("updater was not invoked")
	}
	if gotArgs["text"] != "buy milk" {
		t.Fatalf("unexpected updater args: %#v", gotArgs)
	}
}

// An Updater's facade writes must surface in the Dependencies Write returns
// and in the events published alongside it, not just the fields the main
// traversal itself wrote.
func TestWrite_UpdaterFacadeWritesAreTrackedAsDependencies(t *testing.T) {
	bus := eventbus.New()
	s := store.New(store.Config{
		Bus: bus,
		Updaters: map[string]map[string]store.Updater{
			"Mutation": {"removeTodo": func(result, args map[string]any, f *store.WriteFacade, ctx context.Context) {
				f.Invalidate("Todo:1", "text")
			}},
		},
	})

	var gotKeys []string
	eventbus.Subscribe(s.Bus(), func(ctx context.Context, e events.WriteFinish) {
		gotKeys = e.Keys
	})
	var invalidated []string
	eventbus.Subscribe(s.Bus(), func(ctx context.Context, e events.Invalidated) {
		invalidated = e.Keys
	})

	doc := mustParse(t, `mutation { removeTodo(id: "1") }`)
	deps, err := Write(context.Background(), s, Request{Document: doc}, map[string]any{"removeTodo": true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, ok := deps["Todo:1"]; !ok {
		t.Fatalf("expected Todo:1 in returned dependencies from the updater's facade write, got %v", deps)
	}
	if !containsString(gotKeys, "Todo:1") {
		t.Fatalf("expected Todo:1 in WriteFinish.Keys, got %v", gotKeys)
	}
	if !containsString(invalidated, "Todo:1") {
		t.Fatalf("expected Todo:1 in Invalidated.Keys, got %v", invalidated)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// A list of embedded (keyless) objects must write each element such that
// its fields are reachable again through its own list-position Link, not
// silently dropped.
func TestWrite_ListOfEmbeddedObjectsRoundTrips(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { sections { title } }`)
	result := map[string]any{
		"sections": []any{
			map[string]any{"title": "intro"},
			map[string]any{"title": "body"},
		},
	}
	if _, err := Write(context.Background(), s, Request{Document: doc}, result); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rootLink, ok := s.GetLink("Query.sections")
	if !ok {
		t.Fatal("expected root link for sections")
	}
	list, ok := rootLink.([]store.Link)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected root link shape: %#v", rootLink)
	}

	elem0, ok := list[0].(string)
	if !ok || elem0 == "" {
		t.Fatalf("expected element 0's link to be a non-empty embedded addressing key, got %#v", list[0])
	}
	title0, ok := s.GetRecordField(elem0, "title")
	if !ok || title0 != "intro" {
		t.Fatalf("expected element 0's title to be reachable at its own link key, got %v, %v", title0, ok)
	}

	elem1, ok := list[1].(string)
	if !ok || elem1 == "" {
		t.Fatalf("expected element 1's link to be a non-empty embedded addressing key, got %#v", list[1])
	}
	title1, ok := s.GetRecordField(elem1, "title")
	if !ok || title1 != "body" {
		t.Fatalf("expected element 1's title to be reachable at its own link key, got %v, %v", title1, ok)
	}
}

func TestWrite_NullAndListOfEntities(t *testing.T) {
	s := store.New(store.Config{})
	doc := mustParse(t, `query { todos { id creator { id } } }`)
	result := map[string]any{
		"todos": []any{
			map[string]any{"__typename": "Todo", "id": "1", "creator": nil},
			nil,
		},
	}
	if _, err := Write(context.Background(), s, Request{Document: doc}, result); err != nil {
		t.Fatalf("Write: %v", err)
	}
	creatorLink, ok := s.GetLink("Todo:1.creator")
	if !ok || creatorLink != nil {
		t.Fatalf("expected null creator link, got %v, %v", creatorLink, ok)
	}
	rootLink, _ := s.GetLink("Query.todos")
	list, ok := rootLink.([]store.Link)
	if !ok || len(list) != 2 || list[0] != "Todo:1" || list[1] != nil {
		t.Fatalf("unexpected root link shape: %#v", rootLink)
	}
}
