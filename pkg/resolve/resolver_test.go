package resolve_test

import (
	"testing"

	"github.com/stackagent/conductor/pkg/resolve"
	"github.com/stretchr/testify/assert"
)

func TestResolve_WholeValueKeepsType(t *testing.T) {
	variables := map[string]any{
		"count": 3,
		"flags": []any{"a", "b"},
		"opts":  map[string]any{"depth": 2},
	}

	params := map[string]any{
		"n":       "${count}",
		"list":    "${flags}",
		"nested":  "${opts}",
		"literal": "plain",
	}

	resolved, err := resolve.Resolve(params, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, resolved["n"])
	assert.Equal(t, []any{"a", "b"}, resolved["list"])
	assert.Equal(t, map[string]any{"depth": 2}, resolved["nested"])
	assert.Equal(t, "plain", resolved["literal"])
}

func TestResolve_StringInterpolation(t *testing.T) {
	variables := map[string]any{"host": "example.com", "port": 8080}

	resolved, err := resolve.Resolve(map[string]any{
		"url": "https://${host}:${port}/search",
	}, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com:8080/search", resolved["url"])
}

func TestResolve_CompositeInterpolatedAsJSON(t *testing.T) {
	variables := map[string]any{"payload": map[string]any{"q": "price"}}

	resolved, err := resolve.Resolve(map[string]any{
		"body": "data=${payload}",
	}, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, `data={"q":"price"}`, resolved["body"])
}

func TestResolve_TaskResultsShadowVariables(t *testing.T) {
	variables := map[string]any{"fetch": "from-variables"}
	results := map[string]any{"fetch": "from-results"}

	resolved, err := resolve.Resolve(map[string]any{"input": "${fetch}"}, variables, results)
	assert.NoError(t, err)
	assert.Equal(t, "from-results", resolved["input"])
}

func TestResolve_UnresolvedReference(t *testing.T) {
	_, err := resolve.Resolve(map[string]any{"x": "${missing}"}, nil, nil)
	var unresolved *resolve.UnresolvedReferenceError
	assert.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "missing", unresolved.Name)

	// same error on the interpolation path
	_, err = resolve.Resolve(map[string]any{"x": "value: ${missing}"}, nil, nil)
	assert.ErrorAs(t, err, &unresolved)
}

func TestResolve_NestedStructures(t *testing.T) {
	variables := map[string]any{"selector": ".price", "page": 2}

	resolved, err := resolve.Resolve(map[string]any{
		"query": map[string]any{
			"selector": "${selector}",
			"pages":    []any{"${page}", "static"},
		},
	}, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{
		"selector": ".price",
		"pages":    []any{2, "static"},
	}, resolved["query"])
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	params := map[string]any{
		"inner": map[string]any{"url": "${host}"},
	}
	variables := map[string]any{"host": "example.com"}

	_, err := resolve.Resolve(params, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, "${host}", params["inner"].(map[string]any)["url"])
}

func TestResolve_Idempotent(t *testing.T) {
	params := map[string]any{"a": "${x}", "b": "v=${x}"}
	variables := map[string]any{"x": 7}

	first, err := resolve.Resolve(params, variables, nil)
	assert.NoError(t, err)
	second, err := resolve.Resolve(params, variables, nil)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_EmptyParams(t *testing.T) {
	resolved, err := resolve.Resolve(nil, map[string]any{"x": 1}, nil)
	assert.NoError(t, err)
	assert.Empty(t, resolved)
}
