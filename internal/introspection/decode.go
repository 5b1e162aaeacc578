// Package introspection decodes a standard GraphQL introspection query
// result (the `{ __schema { ... } }` response shape defined by the GraphQL
// specification) into a schema.Schema, from which internal/schema builds
// the oracle spec.md's read path and populate transform consult. This
// module never serves introspection — only consumes a previously-fetched
// result, matching spec.md §1's "schema introspection mechanics (the core
// consumes a schema oracle; it does not build one)".
package introspection

import (
	"encoding/json"
	"fmt"

	schemapkg "github.com/otterscale/graphcache/internal/schema"
)

// Result is the top-level introspection query response.
type Result struct {
	Schema SchemaJSON `json:"__schema"`
}

// SchemaJSON is the decoded shape of the __schema field.
type SchemaJSON struct {
	QueryType        *NamedRef   `json:"queryType"`
	MutationType     *NamedRef   `json:"mutationType"`
	SubscriptionType *NamedRef   `json:"subscriptionType"`
	Types            []TypeJSON  `json:"types"`
}

// NamedRef is a bare `{ name }` reference, used for queryType/mutationType/
// subscriptionType and for the innermost named type of a TypeRefJSON chain.
type NamedRef struct {
	Name string `json:"name"`
}

// TypeJSON is one entry of __schema.types.
type TypeJSON struct {
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	Fields        []FieldJSON    `json:"fields"`
	Interfaces    []NamedRef     `json:"interfaces"`
	PossibleTypes []NamedRef     `json:"possibleTypes"`
}

// FieldJSON is one entry of a type's fields list.
type FieldJSON struct {
	Name string       `json:"name"`
	Type TypeRefJSON  `json:"type"`
}

// TypeRefJSON is the introspection __Type shape used for a field's type:
// a chain of LIST/NON_NULL wrappers terminating in a named type.
type TypeRefJSON struct {
	Kind   string       `json:"kind"`
	Name   string       `json:"name"`
	OfType *TypeRefJSON `json:"ofType"`
}

// Decode parses raw introspection JSON into a Result.
func Decode(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("introspection: decode: %w", err)
	}
	return &r, nil
}

// Build converts a decoded introspection Result into a schema.Schema.
func Build(r *Result) (*schemapkg.Schema, error) {
	if r == nil {
		return nil, fmt.Errorf("introspection: nil result")
	}
	s := &schemapkg.Schema{
		Types: make(map[string]*schemapkg.Type, len(r.Schema.Types)),
	}
	if r.Schema.QueryType != nil {
		s.QueryType = r.Schema.QueryType.Name
	}
	if r.Schema.MutationType != nil {
		s.MutationType = r.Schema.MutationType.Name
	}
	if r.Schema.SubscriptionType != nil {
		s.SubscriptionType = r.Schema.SubscriptionType.Name
	}
	for _, t := range r.Schema.Types {
		s.Types[t.Name] = buildType(t)
	}
	return s, nil
}

func buildType(t TypeJSON) *schemapkg.Type {
	out := &schemapkg.Type{
		Name: t.Name,
		Kind: schemapkg.TypeKind(t.Kind),
	}
	for _, iface := range t.Interfaces {
		out.Interfaces = append(out.Interfaces, iface.Name)
	}
	for _, p := range t.PossibleTypes {
		out.PossibleTypes = append(out.PossibleTypes, p.Name)
	}
	for _, f := range t.Fields {
		out.Fields = append(out.Fields, buildField(f))
	}
	return out
}

func buildField(f FieldJSON) *schemapkg.Field {
	ref, nullable := buildTypeRef(&f.Type)
	return &schemapkg.Field{
		Name:     f.Name,
		Type:     ref,
		Nullable: nullable,
	}
}

// buildTypeRef converts the introspection LIST/NON_NULL/named chain into a
// schema.TypeRef, and reports whether the field itself is nullable (i.e.
// the outermost wrapper is not NON_NULL).
func buildTypeRef(t *TypeRefJSON) (*schemapkg.TypeRef, bool) {
	if t == nil {
		return nil, true
	}
	nullable := t.Kind != "NON_NULL"
	ref, _ := convertTypeRef(t)
	return ref, nullable
}

func convertTypeRef(t *TypeRefJSON) (*schemapkg.TypeRef, bool) {
	if t == nil {
		return nil, true
	}
	switch t.Kind {
	case "NON_NULL":
		inner, _ := convertTypeRef(t.OfType)
		return &schemapkg.TypeRef{Kind: schemapkg.KindNonNull, OfType: inner}, false
	case "LIST":
		inner, _ := convertTypeRef(t.OfType)
		return &schemapkg.TypeRef{Kind: schemapkg.KindList, OfType: inner}, true
	default:
		return &schemapkg.TypeRef{Kind: schemapkg.TypeKind(t.Kind), Named: t.Name}, true
	}
}
