// Package events is the vocabulary published on internal/eventbus: the
// cache's own request lifecycle, in place of the teacher's HTTP/gRPC/
// GraphQL-server request lifecycle.
package events

import "time"

// WriteStart is emitted before a write traversal begins.
type WriteStart struct {
	Operation string
	RootKey   string
}

// WriteFinish is emitted after a write traversal completes.
type WriteFinish struct {
	Operation string
	RootKey   string
	Keys      []string
	Duration  time.Duration
}

// ReadStart is emitted before a read traversal begins.
type ReadStart struct {
	Operation string
	RootKey   string
}

// ReadFinish is emitted after a read traversal completes.
type ReadFinish struct {
	Operation string
	RootKey   string
	Partial   bool
	Duration  time.Duration
}

// Invalidated is emitted after a write completes, carrying every entity
// and field key it touched (spec.md §3 Dependencies / §8 property 3). A
// consumer (the embedding exchange) subscribes queries to these keys and
// re-runs any query whose dependency set intersects Keys.
type Invalidated struct {
	Keys []string
}

// PopulateRewritten is emitted after the populate transform rewrites a
// mutation or subscription document.
type PopulateRewritten struct {
	Operation      string
	FieldsRewritten int
}
