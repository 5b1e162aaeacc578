package astutil

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// GetFieldArguments extracts field's argument values, substituting any
// variable reference — at any nesting depth, including inside list and
// object argument values — with its concrete value from vars. An undefined
// variable reference is substituted with nil, mirroring GraphQL's
// coercion of missing nullable inputs (spec.md §7) and keeping the result
// total.
func GetFieldArguments(args ast.ArgumentList, vars map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for _, arg := range args {
		out[arg.Name] = ValueToGo(arg.Value, vars)
	}
	return out
}

// ValueToGo converts a parsed AST value into a plain Go value, recursively
// substituting variable references at every nesting depth.
func ValueToGo(v *ast.Value, vars map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ast.Variable:
		val, ok := vars[v.Raw]
		if !ok {
			return nil
		}
		return val
	case ast.IntValue:
		n, err := strconv.Atoi(v.Raw)
		if err != nil {
			f, _ := strconv.ParseFloat(v.Raw, 64)
			return f
		}
		return n
	case ast.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw
	case ast.BooleanValue:
		return v.Raw == "true"
	case ast.NullValue:
		return nil
	case ast.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = ValueToGo(c.Value, vars)
		}
		return out
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = ValueToGo(c.Value, vars)
		}
		return out
	default:
		return nil
	}
}

// NormalizeVariables resolves an operation's variable definitions against
// supplied raw values, applying default values and substituting missing
// optional variables with nil (never erroring — strict coercion/validation
// of variable values is parsing/validation territory, out of this core's
// scope per spec.md §1).
func NormalizeVariables(op *ast.OperationDefinition, raw map[string]any) map[string]any {
	out := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		if v, ok := raw[def.Variable]; ok {
			out[def.Variable] = v
			continue
		}
		if def.DefaultValue != nil {
			out[def.Variable] = ValueToGo(def.DefaultValue, raw)
			continue
		}
		out[def.Variable] = nil
	}
	// Pass through any extra variables the document didn't declare, so a
	// resolver/updater using store-level variable lookups unrelated to the
	// current operation's declarations still sees them.
	for k, v := range raw {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
