// Package populate implements the query-populate transform of spec.md
// §4.6: it watches the queries an embedding client currently holds live and
// rewrites outgoing @populate-annotated mutation/subscription fields to
// request the union of everything those queries observe for the field's
// return type, so a normalized cache can update every view a mutation
// response could affect instead of just the fields the mutation bothered
// to ask for.
//
// Grounded on the teacher's internal/executor/fields.go CollectFields (walk
// a selection set, expanding fragment spreads and inline fragments against
// a type context) — retargeted from "flatten one selection for execution"
// to "accumulate fragments keyed by concrete type across many selections,
// then re-attach them to a different document."
package populate

import (
	"sort"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/otterscale/graphcache/internal/astutil"
	"github.com/otterscale/graphcache/internal/schema"
)

// fragmentEntry is one synthesized fragment recorded for a typename.
type fragmentEntry struct {
	name string
	node *ast.FragmentDefinition
	key  string
}

// Transformer accumulates per-concrete-type selections from observed
// queries and rewrites @populate fields in outgoing mutations/subscriptions
// to request their union. It is stateful across a single ordered stream of
// ObserveQuery/Teardown/RewriteMutation calls; it is not safe for
// concurrent use, matching the store's single-threaded cooperative model.
type Transformer struct {
	oracle schema.Oracle

	activeQueries map[string]struct{}
	typeFragments map[string][]fragmentEntry
	userFragments map[string]*ast.FragmentDefinition
}

// NewTransformer builds a Transformer. A nil oracle makes ObserveQuery and
// RewriteMutation no-ops beyond emitting the bare "__typename" fallback:
// populate cannot resolve field return types without one.
func NewTransformer(oracle schema.Oracle) *Transformer {
	return &Transformer{
		oracle:        oracle,
		activeQueries: make(map[string]struct{}),
		typeFragments: make(map[string][]fragmentEntry),
		userFragments: make(map[string]*ast.FragmentDefinition),
	}
}

// walkCtx threads the originating query's key and fragment table through a
// recursive selection walk without needing to widen every helper's
// signature as new fields are added.
type walkCtx struct {
	fragments ast.FragmentDefinitionList
	key       string
}

// ObserveQuery records key's contribution to typeFragments: for every
// field whose return type resolves, via the oracle, to a concrete object
// type, its selection set becomes a synthesized fragment on that type. A
// second observation under the same key first tears down the first, so
// re-observing a changed query never leaves stale fragments behind.
func (t *Transformer) ObserveQuery(key string, doc *ast.QueryDocument, operationName string) {
	if t.oracle == nil || doc == nil {
		return
	}
	if _, active := t.activeQueries[key]; active {
		t.Teardown(key)
	}
	op, err := astutil.GetOperation(doc, operationName)
	if err != nil || op.Operation != ast.Query {
		return
	}
	rootType := astutil.RootFields[op.Operation]
	t.walkSelection(walkCtx{fragments: doc.Fragments, key: key}, op.SelectionSet, rootType)
	t.activeQueries[key] = struct{}{}
}

// Teardown removes key's contribution: every fragment it synthesized stops
// being emitted by future RewriteMutation calls.
func (t *Transformer) Teardown(key string) {
	if _, active := t.activeQueries[key]; !active {
		return
	}
	delete(t.activeQueries, key)
	for typename, entries := range t.typeFragments {
		kept := entries[:0]
		for _, e := range entries {
			if e.key != key {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(t.typeFragments, typename)
		} else {
			t.typeFragments[typename] = kept
		}
	}
}

// walkSelection recurses through sel under the object-type context
// typename (empty when the context is unknown, e.g. below an unrecognized
// field), recording a fragment whenever a field's return type resolves to
// a concrete object type.
func (t *Transformer) walkSelection(wc walkCtx, sel ast.SelectionSet, typename string) {
	for _, s := range sel {
		switch n := s.(type) {
		case *ast.Field:
			if n.Name == "__typename" || len(n.SelectionSet) == 0 {
				continue
			}
			retType, ok := "", false
			if typename != "" {
				retType, ok = t.oracle.FieldReturnType(typename, n.Name)
			}
			switch {
			case ok && t.oracle.IsObjectType(retType):
				t.recordFragment(retType, n.SelectionSet, wc.key)
				t.walkSelection(wc, n.SelectionSet, retType)
			case ok:
				// Interface/union return: the field itself gets no
				// fragment (spec.md §4.6 only fires "resolves to a
				// concrete object type"), but nested concrete selections
				// inside it still do.
				t.walkAbstractSelection(wc, n.SelectionSet)
			default:
				t.walkSelection(wc, n.SelectionSet, "")
			}

		case *ast.InlineFragment:
			ctx := typename
			if n.TypeCondition != "" && t.oracle.IsObjectType(n.TypeCondition) {
				ctx = n.TypeCondition
			}
			t.walkSelection(wc, n.SelectionSet, ctx)

		case *ast.FragmentSpread:
			def := wc.fragments.ForName(n.Name)
			if def == nil {
				continue
			}
			t.userFragments[def.Name] = def
			ctx := typename
			if def.TypeCondition != "" && t.oracle.IsObjectType(def.TypeCondition) {
				ctx = def.TypeCondition
			}
			t.walkSelection(wc, def.SelectionSet, ctx)
		}
	}
}

// walkAbstractSelection handles the body of a field whose return type is
// an interface or union: inline fragments and fragment spreads narrowing
// to a concrete object type get recorded; bare fields (e.g. a shared `id`
// selected directly on the interface) do not, since no single concrete
// type owns them here.
func (t *Transformer) walkAbstractSelection(wc walkCtx, sel ast.SelectionSet) {
	for _, s := range sel {
		switch n := s.(type) {
		case *ast.InlineFragment:
			if n.TypeCondition != "" && t.oracle.IsObjectType(n.TypeCondition) {
				t.recordFragment(n.TypeCondition, n.SelectionSet, wc.key)
				t.walkSelection(wc, n.SelectionSet, n.TypeCondition)
			} else {
				t.walkAbstractSelection(wc, n.SelectionSet)
			}
		case *ast.FragmentSpread:
			def := wc.fragments.ForName(n.Name)
			if def == nil {
				continue
			}
			t.userFragments[def.Name] = def
			if def.TypeCondition != "" && t.oracle.IsObjectType(def.TypeCondition) {
				t.recordFragment(def.TypeCondition, def.SelectionSet, wc.key)
				t.walkSelection(wc, def.SelectionSet, def.TypeCondition)
			} else {
				t.walkAbstractSelection(wc, def.SelectionSet)
			}
		}
	}
}

// recordFragment synthesizes a fragment named
// "<typename>_PopulateFragment_<key>" over sel, disambiguating a second
// fragment recorded for the same (typename, key) pair — a query selecting
// the same concrete type twice under different aliases — with a numeric
// suffix.
func (t *Transformer) recordFragment(typename string, sel ast.SelectionSet, key string) {
	suffix := 0
	for _, e := range t.typeFragments[typename] {
		if e.key == key {
			suffix++
		}
	}
	name := typename + "_PopulateFragment_" + key
	if suffix > 0 {
		name += "_" + strconv.Itoa(suffix+1)
	}
	def := &ast.FragmentDefinition{
		Name:          name,
		TypeCondition: typename,
		SelectionSet:  sel,
	}
	t.typeFragments[typename] = append(t.typeFragments[typename], fragmentEntry{name: name, node: def, key: key})
}

// fragCollector gathers fragment definitions referenced while rewriting a
// mutation, preserving first-seen order (which recordFragment/emit order
// already fixes to typename-then-key) and de-duplicating repeats.
type fragCollector struct {
	order []string
	defs  map[string]*ast.FragmentDefinition
}

func newFragCollector() *fragCollector {
	return &fragCollector{defs: make(map[string]*ast.FragmentDefinition)}
}

func (c *fragCollector) add(def *ast.FragmentDefinition) {
	if _, ok := c.defs[def.Name]; ok {
		return
	}
	c.defs[def.Name] = def
	c.order = append(c.order, def.Name)
}

// RewriteMutation rewrites every @populate field in doc's named operation
// (which must be a mutation or subscription) in place, replacing the
// directive and its (typically empty) selection set with a selection
// spreading every currently-live synthesized fragment for the field's
// return type, merged with whatever the caller already wrote on that
// field. It then appends the definitions of every synthesized and
// transitively-referenced user fragment the rewrite used.
// RewriteMutation returns the number of @populate fields it rewrote, for
// callers that want to report it (e.g. as a telemetry attribute).
func (t *Transformer) RewriteMutation(doc *ast.QueryDocument, operationName string) int {
	if doc == nil {
		return 0
	}
	op, err := astutil.GetOperation(doc, operationName)
	if err != nil {
		return 0
	}
	if op.Operation != ast.Mutation && op.Operation != ast.Subscription {
		return 0
	}
	rootType := astutil.RootFields[op.Operation]
	collector := newFragCollector()
	count := 0
	t.rewriteSelection(op.SelectionSet, rootType, doc.Fragments, collector, &count)
	t.appendFragments(doc, collector)
	return count
}

func (t *Transformer) rewriteSelection(sel ast.SelectionSet, typename string, docFrags ast.FragmentDefinitionList, collector *fragCollector, count *int) {
	for _, s := range sel {
		switch n := s.(type) {
		case *ast.Field:
			if n.Name == "__typename" {
				continue
			}
			retType, known := "", false
			if typename != "" && t.oracle != nil {
				retType, known = t.oracle.FieldReturnType(typename, n.Name)
			}
			if astutil.HasPopulateDirective(n.Directives) {
				n.Directives = astutil.WithoutDirective(n.Directives, "populate")
				n.SelectionSet = t.buildPopulateSelection(retType, known, n.SelectionSet, collector)
				*count++
				continue
			}
			if len(n.SelectionSet) > 0 {
				childTypename := ""
				if known && t.oracle.IsObjectType(retType) {
					childTypename = retType
				}
				t.rewriteSelection(n.SelectionSet, childTypename, docFrags, collector, count)
			}

		case *ast.InlineFragment:
			ctx := typename
			if n.TypeCondition != "" && t.oracle != nil && t.oracle.IsObjectType(n.TypeCondition) {
				ctx = n.TypeCondition
			}
			t.rewriteSelection(n.SelectionSet, ctx, docFrags, collector, count)

		case *ast.FragmentSpread:
			def := docFrags.ForName(n.Name)
			if def == nil {
				continue
			}
			ctx := typename
			if def.TypeCondition != "" && t.oracle != nil && t.oracle.IsObjectType(def.TypeCondition) {
				ctx = def.TypeCondition
			}
			t.rewriteSelection(def.SelectionSet, ctx, docFrags, collector, count)
		}
	}
}

// buildPopulateSelection assembles the replacement selection set for one
// @populate field: the union of active synthesized fragments across the
// field's concrete return types (ordered by typename, then by originating
// key), merged with any selection the caller already wrote, falling back
// to a bare __typename when nothing applies (spec.md §4.6, testable
// property "Populate empty").
func (t *Transformer) buildPopulateSelection(retType string, known bool, userSel ast.SelectionSet, collector *fragCollector) ast.SelectionSet {
	var concretes []string
	if known && t.oracle != nil {
		concretes = append(concretes, t.oracle.ConcreteTypes(retType)...)
		sort.Strings(concretes)
	}

	out := make(ast.SelectionSet, 0, len(userSel))
	out = append(out, userSel...)

	spread := false
	for _, ct := range concretes {
		entries := append([]fragmentEntry(nil), t.typeFragments[ct]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
		for _, e := range entries {
			out = append(out, &ast.FragmentSpread{Name: e.name})
			collector.add(e.node)
			spread = true
		}
	}

	if !spread && len(userSel) == 0 {
		out = append(out, &ast.Field{Name: "__typename"})
	}
	return out
}

// appendFragments adds every fragment collector gathered, plus any user
// fragment transitively reachable from one of them, to doc.Fragments.
func (t *Transformer) appendFragments(doc *ast.QueryDocument, collector *fragCollector) {
	if len(collector.order) == 0 {
		return
	}
	users := newFragCollector()
	var collectUserRefs func(sel ast.SelectionSet)
	collectUserRefs = func(sel ast.SelectionSet) {
		for _, s := range sel {
			switch n := s.(type) {
			case *ast.FragmentSpread:
				def, ok := t.userFragments[n.Name]
				if !ok {
					continue
				}
				if _, already := users.defs[n.Name]; already {
					continue
				}
				users.add(def)
				collectUserRefs(def.SelectionSet)
			case *ast.InlineFragment:
				collectUserRefs(n.SelectionSet)
			case *ast.Field:
				collectUserRefs(n.SelectionSet)
			}
		}
	}

	for _, name := range collector.order {
		def := collector.defs[name]
		collectUserRefs(def.SelectionSet)
		doc.Fragments = append(doc.Fragments, def)
	}
	for _, name := range users.order {
		doc.Fragments = append(doc.Fragments, users.defs[name])
	}
}
