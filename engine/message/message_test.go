package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/engine/errs"
)

const basicWorkflow = `{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","outputPath":"/workflow/users"}}}
{"type":"operationUpdate","operationId":"b","operation":{"Wait":{"duration":0}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}
`

func TestParse_BasicWorkflow(t *testing.T) {
	wf, err := Parse([]byte(basicWorkflow))
	require.NoError(t, err)

	assert.Equal(t, "e1", wf.ExecutionID)
	assert.Equal(t, []string{"a", "b"}, wf.Order)
	assert.Equal(t, []string{"a", "b"}, wf.DefinedOrder)
	assert.Len(t, wf.Operations, 2)
	assert.Equal(t, "ApiCall", wf.Operations["a"].Kind)
	assert.Equal(t, "GET", wf.Operations["a"].Args["method"])
	assert.NotEmpty(t, wf.Hash)
}

func TestParse_EmptyLinesIgnored(t *testing.T) {
	input := "\n" + strings.ReplaceAll(basicWorkflow, "\n", "\n\n")
	wf, err := Parse([]byte(input))
	require.NoError(t, err)
	assert.Len(t, wf.Operations, 2)
}

func TestParse_RedefinitionKeepsSlot(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":5}}}
{"type":"operationUpdate","operationId":"b","operation":{"Wait":{"duration":0}}}
{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":10}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}
`
	wf, err := Parse([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, wf.DefinedOrder)
	assert.Equal(t, float64(10), wf.Operations["a"].Args["duration"])
}

func TestParse_BatchedFormRejected(t *testing.T) {
	input := `{"operationUpdate":{"operations":[{"operationId":"a"}]}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Equal(t, errs.CategoryStructure, errs.CategoryOf(err))
	assert.Contains(t, err.Error(), "one operation per line")
}

func TestParse_MissingBeginExecution(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Equal(t, errs.CategoryStructure, errs.CategoryOf(err))
}

func TestParse_BeginExecutionMustBeLast(t *testing.T) {
	input := `{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}
{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last message")
}

func TestParse_EmptyOperationOrder(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}
{"type":"beginExecution","executionId":"e1","operationOrder":[]}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty operationOrder")
}

func TestParse_InvalidOperationID(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"bad id!","operation":{"Wait":{"duration":0}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["bad id!"]}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid operationId")
}

func TestParse_MultipleKindKeysRejected(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0},"ApiCall":{"method":"GET"}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one kind")
}

func TestParse_UnknownMessageType(t *testing.T) {
	input := `{"type":"somethingElse"}
`
	_, err := Parse([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")
}

func TestParse_InvalidJSONLine(t *testing.T) {
	_, err := Parse([]byte("{not json}\n"))
	require.Error(t, err)
	assert.Equal(t, errs.CategoryStructure, errs.CategoryOf(err))
}
