package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/engine/errs"
)

func users() []any {
	return []any{
		map[string]any{"id": float64(1), "name": "ada", "points": float64(50), "tags": []any{"admin"}},
		map[string]any{"id": float64(2), "name": "bob", "points": float64(200), "tags": []any{}},
		map[string]any{"id": float64(3), "name": "carol", "points": float64(120)},
	}
}

func filter(t *testing.T, input []any, conditions ...map[string]any) []any {
	t.Helper()
	conds := make([]any, len(conditions))
	for i, c := range conditions {
		conds[i] = c
	}
	result, err := executeFilterData(context.Background(), nil, map[string]any{
		"inputPath":  input,
		"conditions": conds,
		"outputPath": "/workflow/out",
	})
	require.NoError(t, err)
	return result.([]any)
}

func TestFilterData_EmptyConditionsIsIdentity(t *testing.T) {
	assert.Equal(t, users(), filter(t, users()))
}

func TestFilterData_NumericComparison(t *testing.T) {
	got := filter(t, users(), map[string]any{"field": "points", "operator": ">", "value": float64(100)})
	require.Len(t, got, 2)
	assert.Equal(t, float64(2), got[0].(map[string]any)["id"])
	assert.Equal(t, float64(3), got[1].(map[string]any)["id"])
}

func TestFilterData_OpKeyIsAnAliasForOperator(t *testing.T) {
	withOperator := filter(t, users(), map[string]any{"field": "points", "operator": ">", "value": float64(100)})
	withOp := filter(t, users(), map[string]any{"field": "points", "op": ">", "value": float64(100)})
	assert.Equal(t, withOperator, withOp)
}

func TestFilterData_AllConditionsMustMatch(t *testing.T) {
	got := filter(t, users(),
		map[string]any{"field": "points", "op": ">", "value": float64(100)},
		map[string]any{"field": "name", "op": "==", "value": "bob"},
	)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].(map[string]any)["name"])
}

func TestFilterData_StringOperators(t *testing.T) {
	got := filter(t, users(), map[string]any{"field": "name", "op": "startsWith", "value": "c"})
	require.Len(t, got, 1)
	assert.Equal(t, "carol", got[0].(map[string]any)["name"])

	got = filter(t, users(), map[string]any{"field": "name", "op": "endsWith", "value": "ob"})
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].(map[string]any)["name"])
}

func TestFilterData_InOperator(t *testing.T) {
	got := filter(t, users(), map[string]any{"field": "name", "op": "in", "value": []any{"ada", "carol"}})
	assert.Len(t, got, 2)
}

func TestFilterData_ContainsOnArrayField(t *testing.T) {
	got := filter(t, users(), map[string]any{"field": "tags", "op": "contains", "value": "admin"})
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[0].(map[string]any)["name"])
}

func TestFilterData_MissingFieldFailsCondition(t *testing.T) {
	// Only the two users with a tags field can match on it
	got := filter(t, users(), map[string]any{"field": "tags", "op": "!=", "value": nil})
	assert.Len(t, got, 2)
}

func TestFilterData_NonArrayInput(t *testing.T) {
	_, err := executeFilterData(context.Background(), nil, map[string]any{
		"inputPath":  map[string]any{"not": "an array"},
		"conditions": []any{},
	})
	require.Error(t, err)
	assert.Equal(t, errs.CategoryData, errs.CategoryOf(err))
}

func TestFilterData_PreservesOrder(t *testing.T) {
	got := filter(t, users(), map[string]any{"field": "points", "op": ">=", "value": float64(0)})
	require.Len(t, got, 3)
	assert.Equal(t, float64(1), got[0].(map[string]any)["id"])
	assert.Equal(t, float64(3), got[2].(map[string]any)["id"])
}
