// Package reader implements the read path of spec.md §4.4: traversing a
// request's selection set against the store, honoring fragments,
// resolvers, schema-driven partial results, and dependency emission.
//
// Grounded on the teacher's internal/executor/executor.go
// executeSelectionSet/executeField (resolve operation, walk fields,
// recurse into sub-selections, accumulate into a result tree) — retargeted
// from "call a user resolver for every field" to "read from the store,
// falling back to a resolver only where one is registered."
package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/otterscale/graphcache/internal/astutil"
	"github.com/otterscale/graphcache/internal/events"
	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/keyutil"
	"github.com/otterscale/graphcache/internal/reqid"
	"github.com/otterscale/graphcache/internal/schema"
	"github.com/otterscale/graphcache/internal/store"
)

// Request is the read path's input: a parsed document, the operation to
// run, raw variables, and an optional prior result tree for root-merge
// reads (spec.md §4.4 step 3).
type Request struct {
	Document  *ast.QueryDocument
	Operation string
	Variables map[string]any
	Prior     map[string]any
}

// Result is the read path's output.
type Result struct {
	Data         map[string]any
	Partial      bool
	Dependencies map[string]struct{}
}

// Read materializes req against s.
func Read(ctx context.Context, s *store.Store, req Request) (Result, error) {
	op, err := astutil.GetOperation(req.Document, req.Operation)
	if err != nil {
		return Result{}, err
	}
	vars := astutil.NormalizeVariables(op, req.Variables)
	rootKey := astutil.RootKey(op, nil)
	start := time.Now()

	s.InitDependencies()
	defer s.ClearDependencies()

	eventbus.Publish(ctx, s.Bus(), events.ReadStart{
		Operation: string(op.Operation),
		RootKey:   rootKey,
	})

	r := &reader{store: s, doc: req.Document, vars: vars, ctx: ctx, oracle: s.Oracle(), rootKey: rootKey}

	var data map[string]any
	if _, hasPrior := typenameOfData(req.Prior); hasPrior {
		if d, ok := r.readRootMerge(rootKey, req.Prior, op.SelectionSet); ok {
			data = d
		}
	} else if d, ok := r.readSelection(rootKey, op.SelectionSet); ok {
		data = d
	}

	// spec.md §4.4 step 6: a root that produced no real fields (only the
	// synthetic __typename seed) under a partial read carries no usable
	// data.
	if r.partial && len(data) <= 1 {
		data = nil
	}

	deps := s.CurrentDependencies()
	eventbus.Publish(ctx, s.Bus(), events.ReadFinish{
		Operation: string(op.Operation),
		RootKey:   rootKey,
		Partial:   r.partial,
		Duration:  time.Since(start),
	})

	return Result{Data: data, Partial: r.partial, Dependencies: deps}, nil
}

func typenameOfData(data map[string]any) (string, bool) {
	if data == nil {
		return "", false
	}
	t, ok := data["__typename"].(string)
	if !ok || t == "" {
		return "", false
	}
	return t, true
}

// typenameOfEntityKey recovers a typename from a genuine entity key
// ("Query", "Mutation", "Subscription", or "Typename:id"). Keys containing
// "." are embedded addressing prefixes, not entity keys, and carry no
// recoverable typename — embedded objects are written without a stored
// __typename, exactly as the write path never records one for them.
func typenameOfEntityKey(key string) string {
	switch key {
	case "Query", "Mutation", "Subscription":
		return key
	}
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return ""
		}
	}
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return ""
}

type reader struct {
	store   *store.Store
	doc     *ast.QueryDocument
	vars    map[string]any
	ctx     context.Context
	oracle  schema.Oracle
	rootKey string
	partial bool
}

// appliesFor builds the Applies predicate for fragments encountered while
// reading entityKey, whose concrete typename is typename (possibly "" for
// an embedded addressing prefix).
func (r *reader) appliesFor(entityKey, typename string) astutil.Applies {
	if r.oracle != nil {
		return func(cond string, _ ast.SelectionSet) bool {
			return r.oracle.IsInterfaceOfType(cond, typename)
		}
	}
	return func(cond string, sel ast.SelectionSet) bool {
		if typename != "" && cond == typename {
			return true
		}
		for _, s := range sel {
			f, ok := s.(*ast.Field)
			if !ok {
				// A nested fragment spread/inline fragment inside the
				// candidate fragment: conservatively require only direct
				// field children to be present, matching the spec's
				// "every field in the fragment's selection" wording.
				continue
			}
			args := astutil.GetFieldArguments(f.Arguments, r.vars)
			fieldKey := keyutil.KeyOfField(f.Name, args)
			if !r.store.HasField(entityKey, fieldKey) {
				return false
			}
		}
		return true
	}
}

// readSelection reads every field of sel against entityKey, returning the
// materialized data and whether the read succeeded (false means the
// selection was poisoned by an uncached, non-nullable field and must
// bubble up).
func (r *reader) readSelection(entityKey string, sel ast.SelectionSet) (map[string]any, bool) {
	typename := typenameOfEntityKey(entityKey)
	data := map[string]any{}
	if typename != "" {
		data["__typename"] = typename
	}
	it := astutil.NewIterator(r.doc.Fragments, r.vars, r.appliesFor(entityKey, typename))
	for _, field := range it.Fields(sel) {
		if !r.readField(entityKey, typename, field, data) {
			return nil, false
		}
	}
	return data, true
}

// readField reads one field into data[alias], returning false if the
// field poisons the enclosing selection.
func (r *reader) readField(entityKey, typename string, field *ast.Field, data map[string]any) bool {
	alias := aliasOf(field)
	args := astutil.GetFieldArguments(field.Arguments, r.vars)
	fieldKey := keyutil.KeyOfField(field.Name, args)
	fullKey := keyutil.JoinKeys(entityKey, fieldKey)

	r.store.AddDependency(entityKey)
	if entityKey == r.rootKey {
		r.store.AddDependency(fullKey)
	}

	if raw, present := r.store.GetRecordField(entityKey, fieldKey); present {
		data[alias] = raw
	}

	if resolver, hasResolver := r.store.Resolver(typename, field.Name); hasResolver {
		facade := store.NewReadFacade(r.store)
		ret := resolver(cloneMap(data), args, facade, r.ctx)
		if ret != store.Missing {
			return r.applyResolverResult(typename, fullKey, field, alias, ret, data)
		}
		// Missing: fall through to ordinary record/link lookup below.
	}

	if len(field.SelectionSet) == 0 {
		if _, present := data[alias]; present {
			return true
		}
		return r.miss(typename, field.Name, alias, data)
	}

	if link, hasLink := r.store.GetLink(fullKey); hasLink {
		value, ok := r.materializeLink(fullKey, field.SelectionSet, link)
		if !ok {
			return r.miss(typename, field.Name, alias, data)
		}
		data[alias] = value
		return true
	}

	if _, hasRecord := r.store.GetRecord(fullKey); hasRecord {
		sub, ok := r.readSelection(fullKey, field.SelectionSet)
		if !ok {
			return r.miss(typename, field.Name, alias, data)
		}
		data[alias] = sub
		return true
	}

	if nested, present := r.store.GetRecordField(entityKey, fieldKey); present {
		if m, ok := nested.(map[string]any); ok {
			data[alias] = m
			return true
		}
	}

	return r.miss(typename, field.Name, alias, data)
}

// applyResolverResult classifies a Resolver's return value into the
// tagged variant of spec.md §9's "Resolver polymorphism" note (scalar,
// entity ref, embedded mapping, list, or invalid), entirely internally —
// the public Resolver contract stays a plain `any` return.
func (r *reader) applyResolverResult(typename, fullKey string, field *ast.Field, alias string, ret any, data map[string]any) bool {
	if ret == nil {
		data[alias] = nil
		return true
	}
	if len(field.SelectionSet) == 0 {
		data[alias] = ret
		return true
	}
	switch v := ret.(type) {
	case string:
		val, ok := r.readEntity(v, field.SelectionSet)
		if !ok {
			return r.miss(typename, field.Name, alias, data)
		}
		data[alias] = val
		return true
	case map[string]any:
		if key, ok := r.store.KeyOfEntity(v); ok {
			val, ok2 := r.readEntity(key, field.SelectionSet)
			if !ok2 {
				return r.miss(typename, field.Name, alias, data)
			}
			data[alias] = val
			return true
		}
		// Embedded continuation: no stable key, fall back to the computed
		// field key (spec.md §4.4 step 4).
		sub, ok := r.readSelectionOverData(fullKey, field.SelectionSet, v)
		if !ok {
			return r.miss(typename, field.Name, alias, data)
		}
		data[alias] = sub
		return true
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			val, ok := r.applyResolverListElem(keyutil.JoinKeys(fullKey, fmt.Sprint(i)), field.SelectionSet, elem)
			if !ok {
				return r.miss(typename, field.Name, alias, data)
			}
			out[i] = val
		}
		data[alias] = out
		return true
	default:
		// A resolver returned a scalar where a selection set was expected:
		// spec.md §7, recoverable warning, field treated as missing.
		rid, _ := reqid.FromContext(r.ctx)
		r.store.Warnf("graphcache[%d]: resolver for %s.%s returned a scalar where a selection set was expected", rid, typename, field.Name)
		return r.miss(typename, field.Name, alias, data)
	}
}

func (r *reader) applyResolverListElem(elemKey string, sel ast.SelectionSet, value any) (any, bool) {
	if value == nil {
		return nil, true
	}
	switch v := value.(type) {
	case string:
		return r.readEntity(v, sel)
	case map[string]any:
		if key, ok := r.store.KeyOfEntity(v); ok {
			return r.readEntity(key, sel)
		}
		return r.readSelectionOverData(elemKey, sel, v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			val, ok := r.applyResolverListElem(keyutil.JoinKeys(elemKey, fmt.Sprint(i)), sel, elem)
			if !ok {
				return nil, false
			}
			out[i] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// readSelectionOverData reads sel using seed as the resolver-provided
// embedded object instead of consulting the store directly for leaf
// fields, falling back to a normal store-backed readField otherwise. This
// mirrors the write path's "embedded continuation" addressing: the
// resolver already produced concrete data, so it is honored directly
// rather than re-derived from records that were never written for it.
func (r *reader) readSelectionOverData(addrPrefix string, sel ast.SelectionSet, seed map[string]any) (map[string]any, bool) {
	typename, _ := seed["__typename"].(string)
	data := map[string]any{}
	if typename != "" {
		data["__typename"] = typename
	}
	it := astutil.NewIterator(r.doc.Fragments, r.vars, r.appliesFor(addrPrefix, typename))
	for _, field := range it.Fields(sel) {
		alias := aliasOf(field)
		if v, present := seed[alias]; present {
			if len(field.SelectionSet) == 0 {
				data[alias] = v
				continue
			}
		}
		if !r.readField(addrPrefix, typename, field, data) {
			return nil, false
		}
	}
	return data, true
}

// materializeLink resolves a Link tree rooted at addrPrefix into plain
// data, recursing through nested lists.
func (r *reader) materializeLink(addrPrefix string, sel ast.SelectionSet, link store.Link) (any, bool) {
	switch v := link.(type) {
	case nil:
		return nil, true
	case string:
		return r.readEntity(v, sel)
	case []store.Link:
		out := make([]any, len(v))
		for i, elem := range v {
			val, ok := r.materializeLink(keyutil.JoinKeys(addrPrefix, fmt.Sprint(i)), sel, elem)
			if !ok {
				return nil, false
			}
			out[i] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func (r *reader) readEntity(entityKey string, sel ast.SelectionSet) (any, bool) {
	return r.readSelection(entityKey, sel)
}

// miss applies spec.md §4.4 step 5's partial-result discipline: with an
// oracle reporting fieldName nullable on typename, fill null and raise
// partial; otherwise poison the enclosing selection.
func (r *reader) miss(typename, fieldName, alias string, data map[string]any) bool {
	if r.oracle != nil && r.oracle.IsFieldNullable(typename, fieldName) {
		data[alias] = nil
		r.partial = true
		return true
	}
	delete(data, alias)
	return false
}

func aliasOf(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
