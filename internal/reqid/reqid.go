// Package reqid threads a per-call correlation id through context.Context,
// used to key in-flight telemetry spans and to tag development-mode
// resolver warnings with the call in which they occurred.
package reqid

import (
	"context"
	"math/rand"
)

type key struct{}

// NewContext returns a copy of parent carrying a new random id, along with
// the id itself.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int63()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the id stored by NewContext, if any.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}
