package resolve

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/spf13/cast"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// UnresolvedReferenceError reports a ${name} placeholder that matches neither
// a prior task output nor a workflow variable.
type UnresolvedReferenceError struct {
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference ${%s}", e.Name)
}

// Resolve substitutes ${name} placeholders in the parameter values before a
// task is dispatched. Names are looked up first in results (prior task
// outputs keyed by task name), then in variables. A value that is exactly one
// placeholder is replaced whole, preserving the referenced value's type;
// placeholders embedded in a larger string are interpolated as strings.
// Resolve never mutates its inputs and is safe to call concurrently for
// sibling tasks of the same level.
func Resolve(params, variables, results map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		v, err := resolveValue(value, variables, results)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}
	return resolved, nil
}

func resolveValue(value any, variables, results map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, variables, results)
	case map[string]any:
		return Resolve(v, variables, results)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := resolveValue(item, variables, results)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func resolveString(s string, variables, results map[string]any) (any, error) {
	m := placeholder.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	// whole-value replacement keeps the referenced value's type
	if m[0] == s {
		return lookup(m[1], variables, results)
	}

	var lookupErr error
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		ref, err := lookup(name, variables, results)
		if err != nil {
			if lookupErr == nil {
				lookupErr = err
			}
			return match
		}
		return stringify(ref)
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return out, nil
}

func lookup(name string, variables, results map[string]any) (any, error) {
	if v, ok := results[name]; ok {
		return v, nil
	}
	if v, ok := variables[name]; ok {
		return v, nil
	}
	return nil, &UnresolvedReferenceError{Name: name}
}

// stringify coerces a referenced value for interpolation inside a larger
// string. Scalars go through cast; composites are JSON-encoded.
func stringify(v any) string {
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}
