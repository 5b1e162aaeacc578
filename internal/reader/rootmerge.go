package reader

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/otterscale/graphcache/internal/astutil"
)

// readRootMerge implements spec.md §4.4 step 3's root-merge read: when the
// caller supplies a prior result tree carrying a __typename, the read
// preserves prior's shape and only recurses through its non-scalar,
// non-null sub-fields, using each sub-field's prior value to discover the
// real entity key to read fresh from the store (via keyOfEntity) rather
// than relying solely on the store's own link table — this lets a caller
// re-read a view it already holds even when the field that would
// otherwise locate that child's link has itself gone missing. Leaf
// scalars and any field prior does not mention fall back to the ordinary
// store-backed read.
func (r *reader) readRootMerge(entityKey string, prior map[string]any, sel ast.SelectionSet) (map[string]any, bool) {
	typename := typenameOfEntityKey(entityKey)
	data := map[string]any{}
	if typename != "" {
		data["__typename"] = typename
	}
	it := astutil.NewIterator(r.doc.Fragments, r.vars, r.appliesFor(entityKey, typename))
	for _, field := range it.Fields(sel) {
		alias := aliasOf(field)

		if len(field.SelectionSet) == 0 {
			if !r.readField(entityKey, typename, field, data) {
				return nil, false
			}
			continue
		}

		priorChild, hasPriorChild := prior[alias]
		if !hasPriorChild {
			if !r.readField(entityKey, typename, field, data) {
				return nil, false
			}
			continue
		}
		if priorChild == nil {
			data[alias] = nil
			continue
		}
		if !r.readFieldWithPriorHint(entityKey, typename, field, priorChild, data) {
			return nil, false
		}
	}
	return data, true
}

// readFieldWithPriorHint uses priorChild's shape to discover real entity
// keys for composite fields, falling back to the ordinary store-backed
// field read wherever priorChild doesn't resolve to a keyable entity.
func (r *reader) readFieldWithPriorHint(entityKey, typename string, field *ast.Field, priorChild any, data map[string]any) bool {
	alias := aliasOf(field)
	switch v := priorChild.(type) {
	case map[string]any:
		if key, ok := r.store.KeyOfEntity(v); ok {
			sub, ok2 := r.readEntity(key, field.SelectionSet)
			if !ok2 {
				return r.miss(typename, field.Name, alias, data)
			}
			data[alias] = sub
			return true
		}
		return r.readField(entityKey, typename, field, data)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			if elem == nil {
				out[i] = nil
				continue
			}
			m, ok := elem.(map[string]any)
			if !ok {
				return r.readField(entityKey, typename, field, data)
			}
			key, ok := r.store.KeyOfEntity(m)
			if !ok {
				return r.readField(entityKey, typename, field, data)
			}
			sub, ok2 := r.readEntity(key, field.SelectionSet)
			if !ok2 {
				return r.miss(typename, field.Name, alias, data)
			}
			out[i] = sub
		}
		data[alias] = out
		return true
	default:
		return r.readField(entityKey, typename, field, data)
	}
}
