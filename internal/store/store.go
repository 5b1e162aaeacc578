// Package store is the normalized record/link table of spec.md §3/§4.2: the
// entity and link maps, the user-supplied resolver/updater registries, the
// optional schema oracle, and the ambient dependency-capture side channel
// a read or write traversal uses to report which keys it touched.
//
// Grounded on the teacher's internal/executor/executor.go executionState:
// a single mutable struct threaded through one traversal holding scratch
// state (there: nullified-path tombstones and accumulated errors; here:
// the dependency-capture set), built on the same "one logical owner per
// call, no internal concurrency" assumption the teacher documents for its
// executor.
package store

import (
	"context"
	"fmt"

	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/keyutil"
	"github.com/otterscale/graphcache/internal/schema"
)

// Link is the relationship from a parent field-key to its child entities:
// a single entity key, nil, or an arbitrarily nested slice of Link for
// list-of-list fields (spec.md §3). Go has no closed sum type, so this is
// modeled as `any`; Link values are built by the callers of WriteLink
// (internal/writer, and updaters through WriteFacade.WriteLink) — see
// DESIGN.md's Open Question resolution.
type Link any

// Record is the flat mapping of field-keys to scalars stored under one
// entity key.
type Record map[string]any

// missingType is Missing's type.
type missingType struct{}

// Missing is the sentinel a Resolver returns to report a cache miss:
// spec.md §6 allows a resolver to return "undefined" for this, a value
// JavaScript distinguishes from null but Go's `any` cannot. Returning
// Missing tells the read path to fall back to the ordinary record/link
// lookup, exactly as if no resolver were registered for this field.
// Returning plain nil, by contrast, is an explicit null value.
var Missing missingType

// Resolver is the user hook of spec.md §6: given the parent data already
// written for the current field, the field's coerced arguments, a
// read-only store facade, and the ambient context, it returns a scalar,
// nil, an entity mapping, an entity key string, a slice of any of the
// preceding, or Missing to signal a cache miss. Resolvers MUST NOT mutate
// anything reachable through the facade.
type Resolver func(parent map[string]any, args map[string]any, facade *ReadFacade, ctx context.Context) any

// Updater is the user hook invoked after a write completes at an
// operation root (spec.md §6): result is the full top-level result map for
// the write, args are the top-level field's coerced arguments, and the
// write-capable facade allows rewriting or invalidating other entries.
type Updater func(result map[string]any, args map[string]any, facade *WriteFacade, ctx context.Context)

// Store is the normalized entity/link table.
type Store struct {
	records map[string]Record
	links   map[string]Link

	resolvers map[string]map[string]Resolver
	updaters  map[string]map[string]Updater

	oracle schema.Oracle
	bus    *eventbus.Bus
	warn   func(format string, args ...any)

	capturing bool
	captured  map[string]struct{}
}

// Config collects Store construction parameters. The zero value is a
// usable, empty store with no resolvers, updaters, schema oracle, or event
// bus.
type Config struct {
	Resolvers map[string]map[string]Resolver
	Updaters  map[string]map[string]Updater
	Oracle    schema.Oracle
	Bus       *eventbus.Bus
	Warn      func(format string, args ...any)
}

// New builds a Store from cfg.
func New(cfg Config) *Store {
	s := &Store{
		records:   make(map[string]Record),
		links:     make(map[string]Link),
		resolvers: cfg.Resolvers,
		updaters:  cfg.Updaters,
		oracle:    cfg.Oracle,
		bus:       cfg.Bus,
		warn:      cfg.Warn,
	}
	if s.resolvers == nil {
		s.resolvers = make(map[string]map[string]Resolver)
	}
	if s.updaters == nil {
		s.updaters = make(map[string]map[string]Updater)
	}
	return s
}

// Oracle returns the store's schema oracle, or nil when none was supplied.
func (s *Store) Oracle() schema.Oracle { return s.oracle }

// Bus returns the store's event bus, or nil when none was supplied.
func (s *Store) Bus() *eventbus.Bus { return s.bus }

// Warnf reports a recoverable, development-mode warning (spec.md §7). It is
// a no-op when no Warn hook was configured.
func (s *Store) Warnf(format string, args ...any) {
	if s.warn != nil {
		s.warn(format, args...)
	}
}

// KeyOfEntity returns the entity key for a candidate entity mapping: a
// root key when __typename is "Query", "Mutation", or "Subscription"; a
// "<Typename>:<id>" key when id or _id is present; ok=false (embedded)
// otherwise.
func (s *Store) KeyOfEntity(data map[string]any) (key string, ok bool) {
	typename, _ := data["__typename"].(string)
	if typename == "" {
		return "", false
	}
	switch typename {
	case "Query", "Mutation", "Subscription":
		return typename, true
	}
	id, present := data["id"]
	if !present || id == nil {
		id, present = data["_id"]
	}
	if !present || id == nil {
		return "", false
	}
	return typename + ":" + formatID(id), true
}

func formatID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetRecord returns the whole record stored under entityKey.
func (s *Store) GetRecord(entityKey string) (Record, bool) {
	rec, ok := s.records[entityKey]
	return rec, ok
}

// GetRecordField reads a single field from entityKey's record.
func (s *Store) GetRecordField(entityKey, fieldKey string) (any, bool) {
	rec, ok := s.records[entityKey]
	if !ok {
		return nil, false
	}
	v, ok := rec[fieldKey]
	return v, ok
}

// WriteRecordField writes a scalar field into entityKey's record, creating
// the record if this is the entity's first write.
func (s *Store) WriteRecordField(entityKey, fieldKey string, value any) {
	rec, ok := s.records[entityKey]
	if !ok {
		rec = Record{}
		s.records[entityKey] = rec
	}
	rec[fieldKey] = value
}

// GetField is the keyOfField-aware convenience wrapper of spec.md §4.2.
func (s *Store) GetField(entityKey, name string, args map[string]any) (any, bool) {
	return s.GetRecordField(entityKey, keyutil.KeyOfField(name, args))
}

// HasField reports whether fieldKey has a recorded scalar or a link under
// entityKey — the presence check spec.md §4.5 uses for heuristic fragment
// matching when no schema oracle is available.
func (s *Store) HasField(entityKey, fieldKey string) bool {
	if _, ok := s.GetRecordField(entityKey, fieldKey); ok {
		return true
	}
	_, ok := s.GetLink(keyutil.JoinKeys(entityKey, fieldKey))
	return ok
}

// GetLink reads the link stored under a fully-qualified field key
// (joinKeys(entityKey, fieldKey)).
func (s *Store) GetLink(fullKey string) (Link, bool) {
	l, ok := s.links[fullKey]
	return l, ok
}

// WriteLink writes a link under a fully-qualified field key.
func (s *Store) WriteLink(fullKey string, link Link) {
	s.links[fullKey] = link
}

// Resolver looks up a registered resolver for (typename, fieldName).
func (s *Store) Resolver(typename, fieldName string) (Resolver, bool) {
	m, ok := s.resolvers[typename]
	if !ok {
		return nil, false
	}
	r, ok := m[fieldName]
	return r, ok
}

// Updater looks up a registered updater for (rootKey, fieldName).
func (s *Store) Updater(rootKey, fieldName string) (Updater, bool) {
	m, ok := s.updaters[rootKey]
	if !ok {
		return nil, false
	}
	u, ok := m[fieldName]
	return u, ok
}

// InitDependencies begins a dependency-capture scope. It panics if a scope
// is already active: spec.md §5 requires "exactly one active capture per
// logical call," and a nested read invoked from inside a resolver that is
// itself executing a read is a programmer error this makes impossible to
// silently get wrong.
func (s *Store) InitDependencies() {
	if s.capturing {
		panic("graphcache: nested dependency capture — a read or write was invoked from within another read or write's traversal")
	}
	s.capturing = true
	s.captured = make(map[string]struct{})
}

// AddDependency records key as touched by the current capture scope. It is
// a no-op outside of a capture scope, so facades can call it unconditionally.
func (s *Store) AddDependency(key string) {
	if s.capturing {
		s.captured[key] = struct{}{}
	}
}

// CurrentDependencies returns a copy of the keys captured so far in the
// active scope.
func (s *Store) CurrentDependencies() map[string]struct{} {
	out := make(map[string]struct{}, len(s.captured))
	for k := range s.captured {
		out[k] = struct{}{}
	}
	return out
}

// ClearDependencies ends the current capture scope.
func (s *Store) ClearDependencies() {
	s.capturing = false
	s.captured = nil
}
