package astutil

import "github.com/vektah/gqlparser/v2/ast"

// Applies decides whether a fragment matches the current object, given its
// type condition and its selection set (the latter is needed by the
// no-oracle store-presence heuristic of spec.md §4.5, which must inspect
// the fragment's own fields). The write path supplies direct typename
// equality (or an oracle) and ignores sel; the read path's heuristic
// fallback uses sel to test field presence.
type Applies func(typeCondition string, sel ast.SelectionSet) bool

// Iterator walks a selection set as the flattened sequence of field nodes
// spec.md §4.5 describes (a selection set's direct fields in document
// order, followed by the fields of its applicable fragments in the order
// the fragments appear), transparently expanding fragment
// spreads and inline fragments. It evaluates @skip/@include, resolves
// fragment spreads against doc's fragment definitions, and decides
// fragment applicability via the supplied Applies predicate. __typename
// selections are omitted — callers handle a selected entity's typename
// once, not once per fragment that happens to select it.
//
// An Iterator is immutable after construction and safe to call Fields on
// repeatedly (restartable per call), but a single Fields call is not
// reentrant: it is not safe to call Fields again on the same Iterator from
// within a callback driven by an earlier, still-running Fields call. The
// core never does this — one call to Fields fully flattens its result
// before its caller is given control.
type Iterator struct {
	fragments ast.FragmentDefinitionList
	vars      map[string]any
	applies   Applies
}

// NewIterator builds an Iterator over doc's fragment definitions.
func NewIterator(fragments ast.FragmentDefinitionList, vars map[string]any, applies Applies) *Iterator {
	return &Iterator{fragments: fragments, vars: vars, applies: applies}
}

// frame is one entry of the iterator's explicit stack: a selection set still
// to be walked. Fragment applicability is decided before a frame is pushed,
// so a frame simply walks its children.
type frame struct {
	sel ast.SelectionSet
}

// Fields flattens sel into its ordered field nodes, expanding fragments.
func (it *Iterator) Fields(sel ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	visited := make(map[string]bool)
	stack := []frame{{sel: sel}}
	for len(stack) > 0 {
		// Pop from the front (a plain slice used as a deque).
		top := stack[0]
		stack = stack[1:]

		var pending []frame
		for _, s := range top.sel {
			switch n := s.(type) {
			case *ast.Field:
				if !ShouldInclude(n.Directives, it.vars) {
					continue
				}
				if n.Name == "__typename" {
					continue
				}
				out = append(out, n)

			case *ast.InlineFragment:
				if !ShouldInclude(n.Directives, it.vars) {
					continue
				}
				cond := n.TypeCondition
				if cond != "" && it.applies != nil && !it.applies(cond, n.SelectionSet) {
					continue
				}
				pending = append(pending, frame{sel: n.SelectionSet})

			case *ast.FragmentSpread:
				if !ShouldInclude(n.Directives, it.vars) {
					continue
				}
				if visited[n.Name] {
					continue
				}
				def := it.fragments.ForName(n.Name)
				if def == nil {
					continue
				}
				if !ShouldInclude(def.Directives, it.vars) {
					continue
				}
				if it.applies != nil && !it.applies(def.TypeCondition, def.SelectionSet) {
					continue
				}
				visited[n.Name] = true
				pending = append(pending, frame{sel: def.SelectionSet})
			}
		}
		// Insert expanded fragment frames ahead of the remaining frames. The
		// current frame's own fields are already in out, so a fragment's
		// fields follow all direct fields of the selection set that spread
		// it, not the position the spread occupied.
		stack = append(pending, stack...)
	}
	return out
}
