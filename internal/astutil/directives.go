package astutil

import "github.com/vektah/gqlparser/v2/ast"

// ShouldInclude evaluates @skip/@include against vars, grounded on the
// teacher's shouldIncludeNode (internal/executor/fields.go): @skip(if:
// true) excludes, @include(if: false) excludes, and a node with neither
// directive is included. An "if" argument that does not evaluate to a
// boolean counts as false: it leaves @skip without effect and makes
// @include exclude the node.
func ShouldInclude(directives ast.DirectiveList, vars map[string]any) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if boolArg(skip, vars) {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if !boolArg(include, vars) {
			return false
		}
	}
	return true
}

func boolArg(d *ast.Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v := ValueToGo(arg.Value, vars)
	b, _ := v.(bool)
	return b
}

// HasPopulateDirective reports whether field carries the bare @populate
// directive (spec.md §6: "no arguments").
func HasPopulateDirective(directives ast.DirectiveList) bool {
	return directives.ForName("populate") != nil
}

// WithoutDirective returns directives with any directive named name removed.
func WithoutDirective(directives ast.DirectiveList, name string) ast.DirectiveList {
	out := make(ast.DirectiveList, 0, len(directives))
	for _, d := range directives {
		if d.Name != name {
			out = append(out, d)
		}
	}
	return out
}
