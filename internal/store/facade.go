package store

import "github.com/otterscale/graphcache/internal/keyutil"

// ReadFacade is the read-only view of the store a Resolver receives. Every
// read through the facade registers the entity key it read from as a
// dependency of the ambient capture scope (spec.md §5), so a resolver that
// reaches into the store for data beyond its declared parent/args still
// contributes correctly to invalidation.
type ReadFacade struct {
	s *Store
}

// NewReadFacade wraps s for resolver use.
func NewReadFacade(s *Store) *ReadFacade { return &ReadFacade{s: s} }

// KeyOfEntity delegates to the Store.
func (f *ReadFacade) KeyOfEntity(data map[string]any) (string, bool) {
	return f.s.KeyOfEntity(data)
}

// GetField reads a scalar field from entityKey, recording entityKey as a
// dependency.
func (f *ReadFacade) GetField(entityKey, name string, args map[string]any) (any, bool) {
	f.s.AddDependency(entityKey)
	return f.s.GetField(entityKey, name, args)
}

// GetRecordField reads a field addressed by its already-computed field
// key, recording entityKey as a dependency.
func (f *ReadFacade) GetRecordField(entityKey, fieldKey string) (any, bool) {
	f.s.AddDependency(entityKey)
	return f.s.GetRecordField(entityKey, fieldKey)
}

// GetLink reads the link stored for (entityKey, fieldKey), recording
// entityKey as a dependency.
func (f *ReadFacade) GetLink(entityKey, fieldKey string) (Link, bool) {
	f.s.AddDependency(entityKey)
	return f.s.GetLink(keyutil.JoinKeys(entityKey, fieldKey))
}

// HasField reports field presence under entityKey without registering a
// dependency: presence checks drive fragment-matching heuristics, not data
// consumption.
func (f *ReadFacade) HasField(entityKey, fieldKey string) bool {
	return f.s.HasField(entityKey, fieldKey)
}

// WriteFacade extends ReadFacade with the mutation hooks an Updater may use
// to rewrite or invalidate entries reachable beyond its own result
// (spec.md §6).
type WriteFacade struct {
	ReadFacade
}

// NewWriteFacade wraps s for updater use.
func NewWriteFacade(s *Store) *WriteFacade { return &WriteFacade{ReadFacade{s: s}} }

// WriteRecordField writes a scalar field into entityKey's record, recording
// entityKey as a dependency so the write is observable to invalidation
// consumers the same way the main write traversal's fields are.
func (f *WriteFacade) WriteRecordField(entityKey, fieldKey string, value any) {
	f.s.WriteRecordField(entityKey, fieldKey, value)
	f.s.AddDependency(entityKey)
}

// WriteLink writes a link under (entityKey, fieldKey), recording entityKey
// as a dependency.
func (f *WriteFacade) WriteLink(entityKey, fieldKey string, link Link) {
	f.s.WriteLink(keyutil.JoinKeys(entityKey, fieldKey), link)
	f.s.AddDependency(entityKey)
}

// Invalidate removes a field's recorded value (scalar or link) from
// entityKey, forcing the next read of that field to miss, and records
// entityKey as a dependency so the invalidation itself reaches subscribers.
func (f *WriteFacade) Invalidate(entityKey, fieldKey string) {
	if rec, ok := f.s.records[entityKey]; ok {
		delete(rec, fieldKey)
	}
	delete(f.s.links, keyutil.JoinKeys(entityKey, fieldKey))
	f.s.AddDependency(entityKey)
}

// InvalidateEntity removes every field recorded under entityKey, recording
// entityKey and every link key it deletes as dependencies.
func (f *WriteFacade) InvalidateEntity(entityKey string) {
	delete(f.s.records, entityKey)
	f.s.AddDependency(entityKey)
	prefix := entityKey + "."
	for k := range f.s.links {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(f.s.links, k)
			f.s.AddDependency(k)
		}
	}
}
