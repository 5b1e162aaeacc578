// Package eventbus is a small generic in-process event dispatcher used to
// decouple the store's write/read/populate operations from whatever wants
// to observe them (telemetry, invalidation consumers). Unlike the
// teacher's eventbus, which backs one process-wide Bus behind global
// Use/Subscribe/Publish functions, this Bus is an explicit value owned by
// a Cache: a library that may be instantiated many times in the same
// process (one Cache per test, one per embedding exchange instance) must
// not share mutable dispatch state across instances, so there is no
// package-level singleton here.
package eventbus

import (
	"context"
	"reflect"
	"sync"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

// Bus is an in-process event dispatcher. The zero value is not usable;
// construct with New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any // Handler[T] stored without its type parameter
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]any)} }

// Subscribe registers h to receive every event of type T published on b.
// It returns a function that removes the registration.
func Subscribe[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	wrapped := func(ctx context.Context, v any) { h(ctx, v.(T)) }

	b.mu.Lock()
	hs := b.handlers[t]
	b.handlers[t] = append(hs, wrapped)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[t]
		for i, fn := range hs {
			if reflect.ValueOf(fn).Pointer() == reflect.ValueOf(wrapped).Pointer() {
				hs = append(hs[:i], hs[i+1:]...)
				break
			}
		}
		if len(hs) == 0 {
			delete(b.handlers, t)
		} else {
			b.handlers[t] = hs
		}
	}
}

// Publish dispatches e to every handler subscribed to its type on b.
// Publishing on a nil Bus is a no-op, so a Cache with no telemetry/
// invalidation consumer configured pays no dispatch cost beyond the check.
func Publish[T any](ctx context.Context, b *Bus, e T) {
	if b == nil {
		return
	}
	t := reflect.TypeOf(e)
	b.mu.RLock()
	hs := b.handlers[t]
	if len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	copied := append([]any(nil), hs...)
	b.mu.RUnlock()
	for _, fn := range copied {
		fn.(func(context.Context, any))(ctx, e)
	}
}
