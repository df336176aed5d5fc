package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/engine/datamodel"
)

func conditionTree(t *testing.T) *datamodel.Tree {
	t.Helper()
	tree := datamodel.New(0)
	require.NoError(t, tree.Write("/workflow/count", float64(5)))
	require.NoError(t, tree.Write("/workflow/name", "ada"))
	require.NoError(t, tree.Write("/workflow/empty", []any{}))
	return tree
}

func evalCond(t *testing.T, tree *datamodel.Tree, path, op string, value any) bool {
	t.Helper()
	cond := map[string]any{"path": path, "op": op}
	if value != nil {
		cond["value"] = value
	}
	result, err := EvalCondition(tree, cond)
	require.NoError(t, err)
	return result
}

func TestEvalCondition_Comparisons(t *testing.T) {
	tree := conditionTree(t)

	assert.True(t, evalCond(t, tree, "/workflow/count", ">", float64(3)))
	assert.False(t, evalCond(t, tree, "/workflow/count", ">", float64(10)))
	assert.True(t, evalCond(t, tree, "/workflow/count", "==", float64(5)))
	assert.True(t, evalCond(t, tree, "/workflow/name", "!=", "bob"))
	assert.True(t, evalCond(t, tree, "/workflow/name", "startsWith", "a"))
}

func TestEvalCondition_Exists(t *testing.T) {
	tree := conditionTree(t)

	assert.True(t, evalCond(t, tree, "/workflow/count", "exists", nil))
	assert.False(t, evalCond(t, tree, "/workflow/missing", "exists", nil))
}

func TestEvalCondition_Empty(t *testing.T) {
	tree := conditionTree(t)

	assert.True(t, evalCond(t, tree, "/workflow/empty", "empty", nil))
	assert.True(t, evalCond(t, tree, "/workflow/missing", "empty", nil))
	assert.False(t, evalCond(t, tree, "/workflow/name", "empty", nil))
}

func TestEvalCondition_MissingPathErrors(t *testing.T) {
	tree := conditionTree(t)
	_, err := EvalCondition(tree, map[string]any{
		"path": "/workflow/missing", "op": "==", "value": float64(1),
	})
	assert.Error(t, err)
}

func TestBranches(t *testing.T) {
	ifTrue, ifFalse := Branches(map[string]any{
		"ifTrue":  []any{"a", "b"},
		"ifFalse": []any{"c"},
	})
	assert.Equal(t, []string{"a", "b"}, ifTrue)
	assert.Equal(t, []string{"c"}, ifFalse)

	ifTrue, ifFalse = Branches(map[string]any{"ifTrue": []any{"a"}})
	assert.Equal(t, []string{"a"}, ifTrue)
	assert.Nil(t, ifFalse)
}
