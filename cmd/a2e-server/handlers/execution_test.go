package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/cmd/a2e-server/container"
	"github.com/lyzr/a2e/cmd/a2e-server/middleware"
	"github.com/lyzr/a2e/common/cache"
	"github.com/lyzr/a2e/common/logger"
	"github.com/lyzr/a2e/engine/agent"
	"github.com/lyzr/a2e/engine/catalog"
	"github.com/lyzr/a2e/engine/credential"
	"github.com/lyzr/a2e/engine/executor"
)

func testContainer(t *testing.T) *container.Container {
	t.Helper()

	cat, err := catalog.NewBuiltin()
	require.NoError(t, err)

	agents := agent.NewStaticProvider()
	agents.Register("agent-1", &agent.AllowedCatalog{
		OperationKinds: map[string]bool{catalog.KindWait: true},
	})

	resultCache := cache.New(cache.Config{Enabled: true, DefaultTTL: time.Minute})
	engine := executor.New(executor.Options{
		Catalog:     cat,
		Agents:      agents,
		Credentials: credential.NewStaticResolver(),
		Cache:       resultCache,
		Logger:      logger.Discard(),
	})

	return &container.Container{
		Logger: logger.Discard(),
		Engine: engine,
		Cache:  resultCache,
	}
}

func doRequest(t *testing.T, h echo.HandlerFunc, method, target, agentID, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if agentID != "" {
		c.Set(string(middleware.AgentIDKey), agentID)
	}
	require.NoError(t, h(c))
	return rec
}

const waitWorkflow = `{"type":"operationUpdate","operationId":"w","operation":{"Wait":{"duration":0}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["w"]}`

func TestExecute_Success(t *testing.T) {
	h := NewExecutionHandler(testContainer(t))
	rec := doRequest(t, h.Execute, http.MethodPost, "/api/v1/executions", "agent-1", waitWorkflow)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp executor.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.ExecutionID)
	assert.Equal(t, executor.StatusSuccess, resp.Status)
	assert.Contains(t, resp.Operations, "w")
}

func TestExecute_ValidationFailureIsFailedResponse(t *testing.T) {
	h := NewExecutionHandler(testContainer(t))
	workflow := `{"type":"operationUpdate","operationId":"a","operation":{"Nope":{}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}`
	rec := doRequest(t, h.Execute, http.MethodPost, "/api/v1/executions", "agent-1", workflow)

	// validation failures are a failed execution, not a transport error
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp executor.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, executor.StatusFailed, resp.Status)
	require.NotNil(t, resp.Validation)
	assert.False(t, resp.Validation.Valid)
}

func TestExecute_MalformedWorkflowIsBadRequest(t *testing.T) {
	h := NewExecutionHandler(testContainer(t))
	rec := doRequest(t, h.Execute, http.MethodPost, "/api/v1/executions", "agent-1", "not a workflow")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "StructureError")
}

func TestExecute_UnknownAgentIsForbidden(t *testing.T) {
	h := NewExecutionHandler(testContainer(t))
	rec := doRequest(t, h.Execute, http.MethodPost, "/api/v1/executions", "ghost", waitWorkflow)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthorizationError")
}

func TestValidate_ReturnsReport(t *testing.T) {
	h := NewExecutionHandler(testContainer(t))
	rec := doRequest(t, h.Validate, http.MethodPost, "/api/v1/validations", "agent-1", waitWorkflow)

	assert.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)
}

func TestCacheStats_ReturnsCounters(t *testing.T) {
	c := testContainer(t)
	h := NewExecutionHandler(c)
	rec := doRequest(t, h.CacheStats, http.MethodGet, "/api/v1/cache/stats", "agent-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Size)
}

func TestInvalidateCache_ByKind(t *testing.T) {
	c := testContainer(t)
	key, err := cache.Key(catalog.KindAPICall, map[string]any{"url": "https://x.test"})
	require.NoError(t, err)
	c.Cache.Set(key, catalog.KindAPICall, map[string]any{"n": 1}, time.Minute)

	h := NewExecutionHandler(c)
	rec := doRequest(t, h.InvalidateCache, http.MethodDelete,
		fmt.Sprintf("/api/v1/cache?kind=%s", catalog.KindAPICall), "agent-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, c.Cache.Stats().Size)
}

func TestExtractAgent_RequiresHeader(t *testing.T) {
	e := echo.New()
	called := false
	h := middleware.ExtractAgent()(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/executions", nil)
	req.Header.Set("X-Agent-ID", "agent-1")
	rec = httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
