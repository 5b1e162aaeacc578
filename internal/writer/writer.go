// Package writer implements the write path of spec.md §4.3: traversing an
// operation's selection set against a result tree, normalizing entities
// into the store's record and link tables.
//
// Grounded on the teacher's internal/executor/executor.go top-level
// ExecuteRequest/executeSelectionSet shape (resolve operation, walk the
// selection set field by field, recurse into sub-selections) — here
// retargeted from "build a response by calling resolvers" to "normalize an
// already-complete response into the store."
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/otterscale/graphcache/internal/astutil"
	"github.com/otterscale/graphcache/internal/events"
	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/keyutil"
	"github.com/otterscale/graphcache/internal/store"
)

// Request is the write path's input: a parsed document, the operation to
// run (by name, or the document's sole operation), and raw variables.
type Request struct {
	Document  *ast.QueryDocument
	Operation string
	Variables map[string]any
}

// Write normalizes result against req into store, returning the set of
// entity/field keys touched.
func Write(ctx context.Context, s *store.Store, req Request, result map[string]any) (map[string]struct{}, error) {
	op, err := astutil.GetOperation(req.Document, req.Operation)
	if err != nil {
		return nil, err
	}
	vars := astutil.NormalizeVariables(op, req.Variables)
	rootKey := astutil.RootKey(op, nil)
	start := time.Now()

	s.InitDependencies()
	defer s.ClearDependencies()

	eventbus.Publish(ctx, s.Bus(), events.WriteStart{
		Operation: string(op.Operation),
		RootKey:   rootKey,
	})

	w := &walker{store: s, doc: req.Document, vars: vars}
	w.writeSelection(rootKey, op.SelectionSet, result)

	applies := func(typeCondition string, _ ast.SelectionSet) bool {
		typename, _ := result["__typename"].(string)
		return typename == "" || typeCondition == typename
	}
	for _, field := range astutil.NewIterator(req.Document.Fragments, vars, applies).Fields(op.SelectionSet) {
		w.invokeUpdater(ctx, rootKey, field, result)
	}

	// Snapshot dependencies after the updater loop, so facade-driven
	// writes/invalidations reach the returned set and the events below.
	deps := s.CurrentDependencies()

	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	eventbus.Publish(ctx, s.Bus(), events.WriteFinish{
		Operation: string(op.Operation),
		RootKey:   rootKey,
		Keys:      keys,
		Duration:  time.Since(start),
	})
	eventbus.Publish(ctx, s.Bus(), events.Invalidated{Keys: keys})

	return deps, nil
}

type walker struct {
	store *store.Store
	doc   *ast.QueryDocument
	vars  map[string]any
}

// writeSelection writes every field in sel into entityKey's record/link
// space, reading values out of data.
func (w *walker) writeSelection(entityKey string, sel ast.SelectionSet, data map[string]any) {
	applies := func(typeCondition string, _ ast.SelectionSet) bool {
		typename, _ := data["__typename"].(string)
		return typename == "" || typeCondition == typename
	}
	it := astutil.NewIterator(w.doc.Fragments, w.vars, applies)
	for _, field := range it.Fields(sel) {
		w.writeField(entityKey, field, data)
	}
}

func (w *walker) writeField(entityKey string, field *ast.Field, data map[string]any) {
	args := astutil.GetFieldArguments(field.Arguments, w.vars)
	fieldKey := keyutil.KeyOfField(field.Name, args)
	fullKey := keyutil.JoinKeys(entityKey, fieldKey)
	alias := field.Alias
	if alias == "" {
		alias = field.Name
	}
	value, present := data[alias]
	if !present {
		return
	}

	if len(field.SelectionSet) == 0 {
		w.store.WriteRecordField(entityKey, fieldKey, value)
		w.store.AddDependency(entityKey)
		return
	}

	switch v := value.(type) {
	case nil:
		w.store.WriteLink(fullKey, nil)
	case []any:
		w.store.WriteLink(fullKey, w.writeList(fullKey, field.SelectionSet, v))
	case map[string]any:
		if childKey, ok := w.store.KeyOfEntity(v); ok {
			w.writeSelection(childKey, field.SelectionSet, v)
			w.store.WriteLink(fullKey, childKey)
		} else {
			// Embedded: no stable key, so no link entry is written — the
			// child's fields are stored directly under fullKey, addressed
			// as fullKey.fieldKey by the next level of writeSelection.
			w.writeSelection(fullKey, field.SelectionSet, v)
		}
	default:
		// A scalar showed up where a selection was expected; there is
		// nothing principled to normalize, so the value is dropped rather
		// than corrupting the link table.
	}
	w.store.AddDependency(entityKey)
}

// writeList writes each element of values under successive positional
// keys derived from fullKey, returning the resulting (possibly nested)
// Link slice.
func (w *walker) writeList(fullKey string, sel ast.SelectionSet, values []any) []store.Link {
	links := make([]store.Link, len(values))
	for i, elem := range values {
		links[i] = w.writeListElem(keyutil.JoinKeys(fullKey, fmt.Sprint(i)), sel, elem)
	}
	return links
}

// writeListElem writes a single list element, which may itself be nested
// list (list-of-list types), a keyed entity, an embedded object, or null.
// An embedded element writes its fields under elemKey itself and returns
// elemKey as the Link leaf, the same way the top-level field case returns
// fullKey — materializeLink reads an embedded element back out of the
// record space at that same key.
func (w *walker) writeListElem(elemKey string, sel ast.SelectionSet, value any) store.Link {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return w.writeList(elemKey, sel, v)
	case map[string]any:
		if childKey, ok := w.store.KeyOfEntity(v); ok {
			w.writeSelection(childKey, sel, v)
			return childKey
		}
		w.writeSelection(elemKey, sel, v)
		return elemKey
	default:
		return nil
	}
}

func (w *walker) invokeUpdater(ctx context.Context, rootKey string, field *ast.Field, result map[string]any) {
	updater, ok := w.store.Updater(rootKey, field.Name)
	if !ok {
		return
	}
	args := astutil.GetFieldArguments(field.Arguments, w.vars)
	facade := store.NewWriteFacade(w.store)
	updater(result, args, facade, ctx)
}
