package pathref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/engine/errs"
)

// mapReader serves values from a flat path map.
type mapReader map[string]any

func (r mapReader) Read(path string) (any, error) {
	v, ok := r[path]
	if !ok {
		return nil, errs.Data(path, "path not found: %s", path)
	}
	return v, nil
}

func TestResolve_BarePathSubstitution(t *testing.T) {
	r := NewResolver(mapReader{
		"/workflow/users": []any{map[string]any{"id": float64(1)}},
	})

	resolved, err := r.Resolve("/workflow/users")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": float64(1)}}, resolved)
}

func TestResolve_Interpolation(t *testing.T) {
	r := NewResolver(mapReader{
		"/workflow/user/id":   float64(42),
		"/workflow/user/name": "ada",
	})

	resolved, err := r.Resolve("https://api.example.com/users/{/workflow/user/id}?name={/workflow/user/name}")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/42?name=ada", resolved)
}

func TestResolve_NestedStructures(t *testing.T) {
	r := NewResolver(mapReader{"/workflow/token": "abc"})

	resolved, err := r.Resolve(map[string]any{
		"headers": map[string]any{"X-Token": "/workflow/token"},
		"list":    []any{"/workflow/token", "literal"},
		"number":  float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"headers": map[string]any{"X-Token": "abc"},
		"list":    []any{"abc", "literal"},
		"number":  float64(3),
	}, resolved)
}

func TestResolve_MissingPathFails(t *testing.T) {
	r := NewResolver(mapReader{})
	_, err := r.Resolve("/workflow/missing")
	require.Error(t, err)
	assert.Equal(t, errs.CategoryData, errs.CategoryOf(err))
}

func TestResolveArgs_SkipsWriteTargets(t *testing.T) {
	r := NewResolver(mapReader{"/workflow/in": "value"})

	resolved, err := r.ResolveArgs(map[string]any{
		"input":      "/workflow/in",
		"outputPath": "/workflow/out",
	}, map[string]bool{"outputPath": true})
	require.NoError(t, err)

	assert.Equal(t, "value", resolved["input"])
	assert.Equal(t, "/workflow/out", resolved["outputPath"])
}

func TestCollectArgRefs(t *testing.T) {
	refs := CollectArgRefs(map[string]any{
		"input":      "/workflow/users",
		"url":        "https://x.test/{/workflow/id}",
		"outputPath": "/workflow/out",
		"plain":      "hello",
	}, map[string]bool{"outputPath": true})

	assert.ElementsMatch(t, []string{"/workflow/users", "/workflow/id"}, refs)
}
