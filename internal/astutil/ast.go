package astutil

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// GetOperation resolves the operation to execute from doc: by name when
// name is non-empty, or the sole operation when doc defines exactly one.
func GetOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("astutil: nil document")
	}
	if name != "" {
		if op := doc.Operations.ForName(name); op != nil {
			return op, nil
		}
		return nil, fmt.Errorf("astutil: operation %q not found", name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0], nil
	}
	return nil, fmt.Errorf("astutil: operation name required when document defines %d operations", len(doc.Operations))
}

// RootFields is the default operation-kind to root-key mapping of spec.md
// §4.2 ("rootFields: mapping from operation kind to its root key").
var RootFields = map[ast.Operation]string{
	ast.Query:        "Query",
	ast.Mutation:      "Mutation",
	ast.Subscription: "Subscription",
}

// RootKey resolves an operation's root entity key via rootFields, falling
// back to RootFields when rootFields is nil.
func RootKey(op *ast.OperationDefinition, rootFields map[ast.Operation]string) string {
	if rootFields == nil {
		rootFields = RootFields
	}
	if k, ok := rootFields[op.Operation]; ok {
		return k
	}
	return string(op.Operation)
}
