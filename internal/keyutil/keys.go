// Package keyutil implements the canonical key helpers of the normalized
// store: the stringification of a field invocation (name plus arguments)
// and the composition of a parent entity key with a field key.
package keyutil

import (
	"encoding/json"
	"sort"
)

// KeyOfField returns the canonical field-key for a field invocation. It is
// just name when args is empty, and name(<canonical argsJSON>) otherwise.
// Equal semantic argument sets (same keys, same values, any key order,
// undefined-valued keys omitted) always produce equal keys.
func KeyOfField(name string, args map[string]any) string {
	if len(args) == 0 {
		return name
	}
	canon := canonicalize(args)
	if canon == nil {
		return name
	}
	encoded, err := json.Marshal(canon)
	if err != nil {
		// args are built from decoded GraphQL literals/variables, which are
		// always JSON-safe (string, float64, int, bool, nil, []any,
		// map[string]any); Marshal cannot fail for these inputs.
		return name
	}
	return name + "(" + string(encoded) + ")"
}

// JoinKeys composes a parent entity (or field) key with a child field key
// into the fully-qualified key used for the link table. The separator is
// not itself a valid character inside an entity key ("Typename:id") or a
// field key (field names and argsJSON never contain it at this position),
// so the composition is injective.
func JoinKeys(parentKey, childKey string) string {
	return parentKey + "." + childKey
}

// canonicalize walks a decoded argument value, dropping any key whose
// value is absent (Go has no explicit "undefined," so this only applies to
// map keys that are genuinely missing, which json.Marshal already handles)
// and recursively sorting map keys so the result is deterministic. Actual
// sorting of nested maps is delegated to encoding/json, which always
// serializes map[string]any keys in sorted order at every depth.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return map[string]any{}
		}
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = canonicalize(sub)
		}
		return out
	default:
		return val
	}
}
