// Package schema is the optional schema oracle of the normalized cache: it
// answers isFieldNullable and isInterfaceOfType (spec.md §4.2, §6), plus the
// field-return-type and abstract-type-expansion queries the populate
// transform needs (SPEC_FULL.md §4.6). It is derived from a GraphQL
// introspection result by internal/introspection, never built here from
// SDL — schema construction is explicitly out of the core's scope.
package schema

// TypeKind mirrors the GraphQL introspection __TypeKind enum values this
// module actually consumes.
type TypeKind string

const (
	KindScalar      TypeKind = "SCALAR"
	KindObject      TypeKind = "OBJECT"
	KindInterface   TypeKind = "INTERFACE"
	KindUnion       TypeKind = "UNION"
	KindEnum        TypeKind = "ENUM"
	KindInputObject TypeKind = "INPUT_OBJECT"
	KindList        TypeKind = "LIST"
	KindNonNull     TypeKind = "NON_NULL"
)

// TypeRef is a (possibly wrapped) reference to a named type: NonNull and
// List wrap an inner TypeRef; a named leaf carries Named.
type TypeRef struct {
	Kind   TypeKind
	OfType *TypeRef
	Named  string
}

// IsNonNull reports whether t is a NON_NULL wrapper.
func (t *TypeRef) IsNonNull() bool { return t != nil && t.Kind == KindNonNull }

// Unwrap strips a single NonNull or List wrapper, returning t unchanged if
// it is already a named type.
func (t *TypeRef) Unwrap() *TypeRef {
	if t == nil {
		return nil
	}
	if (t.Kind == KindNonNull || t.Kind == KindList) && t.OfType != nil {
		return t.OfType
	}
	return t
}

// NamedType returns the innermost named type, unwrapping NonNull/List.
func (t *TypeRef) NamedType() string {
	for t != nil {
		if t.Named != "" {
			return t.Named
		}
		t = t.OfType
	}
	return ""
}

// Field is a field on an object or interface type.
type Field struct {
	Name     string
	Type     *TypeRef
	Nullable bool
}

// Type is a named GraphQL type.
type Type struct {
	Name          string
	Kind          TypeKind
	Fields        []*Field
	Interfaces    []string // for OBJECT: interfaces it implements
	PossibleTypes []string // for INTERFACE and UNION: concrete member names
}

func (t *Type) field(name string) *Field {
	if t == nil {
		return nil
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Schema is the decoded, queryable form of an introspection result.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
}

// Oracle is the schema-driven predicate set spec.md's read path and
// populate transform consult. A Store or Transformer with a nil Oracle
// falls back to the no-schema behaviors spec.md defines for each (the
// fragment heuristic for reads; populate requires an oracle to do
// anything useful, since it cannot resolve field return types without one).
type Oracle interface {
	// IsFieldNullable reports whether fieldName on typename is a nullable
	// field. Unknown type/field pairs are treated as nullable (permissive
	// default: absence of schema information should not make misses fatal).
	IsFieldNullable(typename, fieldName string) bool

	// IsInterfaceOfType reports whether concrete satisfies typeCondition as
	// a type condition: true for equality, and true when typeCondition
	// names an interface/union of which concrete is a member.
	IsInterfaceOfType(typeCondition, concrete string) bool

	// FieldReturnType resolves the named return type of fieldName on
	// typename (unwrapping List/NonNull), and reports whether the field is
	// known and composite (i.e. selectable; false for leaf scalar/enum
	// fields or unknown fields).
	FieldReturnType(typename, fieldName string) (namedType string, ok bool)

	// IsObjectType reports whether typename names a concrete OBJECT type.
	IsObjectType(typename string) bool

	// ConcreteTypes expands typename into the object types it can resolve
	// to at runtime: the possible types of an interface/union, or the
	// single-element identity for an object type, or nil for anything else.
	ConcreteTypes(typename string) []string
}

// schemaOracle is the Schema-backed Oracle implementation.
type schemaOracle struct{ schema *Schema }

// NewOracle adapts a decoded Schema into an Oracle.
func NewOracle(s *Schema) Oracle {
	if s == nil {
		return nil
	}
	return &schemaOracle{schema: s}
}

func (o *schemaOracle) IsFieldNullable(typename, fieldName string) bool {
	t := o.schema.Types[typename]
	f := t.field(fieldName)
	if f == nil {
		return true
	}
	return f.Nullable
}

func (o *schemaOracle) IsInterfaceOfType(typeCondition, concrete string) bool {
	if typeCondition == concrete {
		return true
	}
	t := o.schema.Types[typeCondition]
	if t == nil {
		return false
	}
	for _, p := range t.PossibleTypes {
		if p == concrete {
			return true
		}
	}
	return false
}

func (o *schemaOracle) FieldReturnType(typename, fieldName string) (string, bool) {
	t := o.schema.Types[typename]
	f := t.field(fieldName)
	if f == nil || f.Type == nil {
		return "", false
	}
	named := f.Type.NamedType()
	if named == "" {
		return "", false
	}
	rt := o.schema.Types[named]
	if rt == nil {
		return "", false
	}
	switch rt.Kind {
	case KindObject, KindInterface, KindUnion:
		return named, true
	default:
		return "", false
	}
}

func (o *schemaOracle) IsObjectType(typename string) bool {
	t := o.schema.Types[typename]
	return t != nil && t.Kind == KindObject
}

func (o *schemaOracle) ConcreteTypes(typename string) []string {
	t := o.schema.Types[typename]
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindObject:
		return []string{t.Name}
	case KindInterface, KindUnion:
		out := make([]string, len(t.PossibleTypes))
		copy(out, t.PossibleTypes)
		return out
	default:
		return nil
	}
}
