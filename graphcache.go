// Package graphcache is a normalized, in-memory GraphQL document cache: it
// sits between a client application and a GraphQL server, normalizing
// server responses into an entity/record store keyed by type and id,
// reading requests back out of that store with partial-result reporting,
// tracking per-call dependencies for invalidation, and rewriting outgoing
// @populate mutation fields to request everything the cache's live queries
// currently observe.
//
// Grounded on the teacher's top-level package shape (hanpama-protograph
// exposes a single Executor as its public entry point wrapping an internal
// execution engine) — here a Cache plays that role, wrapping
// internal/store, internal/writer, and internal/reader behind a narrow
// Write/Read surface.
package graphcache

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/events"
	"github.com/otterscale/graphcache/internal/introspection"
	"github.com/otterscale/graphcache/internal/populate"
	"github.com/otterscale/graphcache/internal/reader"
	"github.com/otterscale/graphcache/internal/reqid"
	"github.com/otterscale/graphcache/internal/schema"
	"github.com/otterscale/graphcache/internal/store"
	"github.com/otterscale/graphcache/internal/telemetry"
	"github.com/otterscale/graphcache/internal/writer"
)

// Resolver and Updater re-export the store package's hook contracts
// (spec.md §6) so embedding code never has to import an internal package to
// implement one.
type (
	Resolver = store.Resolver
	Updater  = store.Updater
)

// Missing is the sentinel a Resolver returns to report a cache miss,
// distinct from a resolver explicitly returning nil (an explicit null).
var Missing = store.Missing

// Dependencies is the set of entity/field keys a Write or Read touched
// (spec.md §3, §8 property 3).
type Dependencies map[string]struct{}

// Request is a parsed GraphQL operation plus its raw variables.
type Request struct {
	Query     *ast.QueryDocument
	Operation string
	Variables map[string]any
}

// ReadResult is the outcome of a Read call.
type ReadResult struct {
	Data         map[string]any
	Partial      bool
	Dependencies Dependencies
}

// Cache is a normalized GraphQL document cache.
type Cache struct {
	store *store.Store
	bus   *eventbus.Bus
}

type config struct {
	resolvers map[string]map[string]store.Resolver
	updaters  map[string]map[string]store.Updater
	oracle    schema.Oracle
	warn      func(format string, args ...any)
	bus       *eventbus.Bus
}

// Option configures a Cache at construction.
type Option func(*config)

// WithResolvers installs the resolver registry of spec.md §6, keyed by
// typename then field name.
func WithResolvers(resolvers map[string]map[string]Resolver) Option {
	return func(c *config) { c.resolvers = resolvers }
}

// WithUpdaters installs the updater registry of spec.md §6, keyed by
// operation root key (one of "Query", "Mutation", "Subscription") then
// field name.
func WithUpdaters(updaters map[string]map[string]Updater) Option {
	return func(c *config) { c.updaters = updaters }
}

// WithSchema derives a schema oracle from a decoded GraphQL introspection
// result, enabling schema-driven partial results on Read and the populate
// transform's return-type resolution. A nil result leaves the Cache
// without an oracle rather than failing construction (Build does no other
// validation of the result), matching spec.md's
// "absence of schema information should not make misses fatal" stance.
func WithSchema(introspected *introspection.Result) Option {
	return func(c *config) {
		built, err := introspection.Build(introspected)
		if err != nil {
			return
		}
		c.oracle = schema.NewOracle(built)
	}
}

// WithOracle installs a ready-made schema oracle directly, bypassing
// introspection decoding.
func WithOracle(oracle schema.Oracle) Option {
	return func(c *config) { c.oracle = oracle }
}

// WithWarnHandler installs a development-mode warning sink for recoverable
// anomalies (spec.md §7), e.g. a resolver returning a scalar where a
// selection set was expected. The default is silent.
func WithWarnHandler(warn func(format string, args ...any)) Option {
	return func(c *config) { c.warn = warn }
}

// WithEventBus attaches an externally-owned event bus instead of the
// Cache's own, so the embedding application can subscribe to
// write/read/invalidation lifecycle events (internal/events) from outside
// before the Cache is built.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(c *config) { c.bus = bus }
}

// New builds a Cache from opts.
func New(opts ...Option) *Cache {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	bus := cfg.bus
	if bus == nil {
		bus = eventbus.New()
	}
	s := store.New(store.Config{
		Resolvers: cfg.resolvers,
		Updaters:  cfg.updaters,
		Oracle:    cfg.oracle,
		Bus:       bus,
		Warn:      cfg.warn,
	})
	return &Cache{store: s, bus: bus}
}

// Bus returns the Cache's event bus, for subscribing custom invalidation
// consumers or wiring EnableTelemetry.
func (c *Cache) Bus() *eventbus.Bus { return c.bus }

// EnableTelemetry configures OpenTelemetry tracing for this Cache's
// write/read lifecycle, mirroring the teacher's internal/otel.Setup. An
// empty endpoint disables tracing and returns a no-op shutdown.
func (c *Cache) EnableTelemetry(endpoint, service string) (shutdown func(context.Context) error, err error) {
	return telemetry.Setup(c.bus, endpoint, service)
}

// Write normalizes result against req into the store, returning every
// entity/field key the write touched.
func (c *Cache) Write(ctx context.Context, req Request, result map[string]any) (Dependencies, error) {
	ctx, _ = reqid.NewContext(ctx)
	deps, err := writer.Write(ctx, c.store, writer.Request{
		Document:  req.Query,
		Operation: req.Operation,
		Variables: req.Variables,
	}, result)
	if err != nil {
		return nil, err
	}
	return Dependencies(deps), nil
}

// Read materializes req from the store. prior, when non-nil and carrying a
// __typename, enables the root-merge read mode of spec.md §4.4 step 3.
func (c *Cache) Read(ctx context.Context, req Request, prior map[string]any) (ReadResult, error) {
	ctx, _ = reqid.NewContext(ctx)
	res, err := reader.Read(ctx, c.store, reader.Request{
		Document:  req.Query,
		Operation: req.Operation,
		Variables: req.Variables,
		Prior:     prior,
	})
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{Data: res.Data, Partial: res.Partial, Dependencies: Dependencies(res.Dependencies)}, nil
}

// Populator rewrites outgoing @populate mutation/subscription fields using
// fragments synthesized from observed queries (spec.md §4.6). It operates
// on the outgoing operation stream orthogonally to any particular Cache's
// store, so it is constructed and used independently.
type Populator struct {
	transformer *populate.Transformer
	bus         *eventbus.Bus
}

// NewPopulator builds a Populator driven by oracle. A nil oracle makes
// every rewrite fall back to the bare "{ __typename }" selection, since
// populate cannot resolve field return types without one.
func NewPopulator(oracle schema.Oracle) *Populator {
	return &Populator{transformer: populate.NewTransformer(oracle)}
}

// UseEventBus attaches bus so future RewriteMutation calls publish
// events.PopulateRewritten, returning p for chaining at construction.
func (p *Populator) UseEventBus(bus *eventbus.Bus) *Populator {
	p.bus = bus
	return p
}

// ObserveQuery records key's contribution to the fragments populate can
// later spread into a rewritten mutation field.
func (p *Populator) ObserveQuery(key string, doc *ast.QueryDocument, operationName string) {
	p.transformer.ObserveQuery(key, doc, operationName)
}

// Teardown removes key's contribution; fragments it synthesized stop being
// emitted by future rewrites.
func (p *Populator) Teardown(key string) {
	p.transformer.Teardown(key)
}

// RewriteMutation rewrites every @populate field in doc's named operation
// in place.
func (p *Populator) RewriteMutation(doc *ast.QueryDocument, operationName string) {
	n := p.transformer.RewriteMutation(doc, operationName)
	opName := operationName
	if opName == "" && doc != nil && len(doc.Operations) == 1 {
		opName = doc.Operations[0].Name
	}
	eventbus.Publish(context.Background(), p.bus, events.PopulateRewritten{
		Operation:       opName,
		FieldsRewritten: n,
	})
}
