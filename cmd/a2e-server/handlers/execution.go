package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/a2e/cmd/a2e-server/container"
	"github.com/lyzr/a2e/cmd/a2e-server/middleware"
	"github.com/lyzr/a2e/engine/errs"
	"github.com/lyzr/a2e/engine/executor"
)

// maxWorkflowBytes caps the request body.
const maxWorkflowBytes = 10 << 20

// ExecutionHandler serves workflow execution and validation requests
type ExecutionHandler struct {
	container *container.Container
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{container: c}
}

// Execute runs a JSONL workflow for the calling agent
// POST /api/v1/executions
func (h *ExecutionHandler) Execute(c echo.Context) error {
	workflowBytes, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWorkflowBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to read request body",
		})
	}

	resp, err := h.container.Engine.Run(c.Request().Context(), executor.Request{
		AgentID:       middleware.GetAgentID(c),
		WorkflowBytes: workflowBytes,
		FullData:      c.QueryParam("format") == "full",
	})
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Validate checks a JSONL workflow without executing it
// POST /api/v1/validations
func (h *ExecutionHandler) Validate(c echo.Context) error {
	workflowBytes, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWorkflowBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to read request body",
		})
	}

	report, err := h.container.Engine.Validate(c.Request().Context(), middleware.GetAgentID(c), workflowBytes)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// CacheStats returns result cache counters
// GET /api/v1/cache/stats
func (h *ExecutionHandler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.container.Cache.Stats())
}

// InvalidateCache drops cache entries, optionally for one kind
// DELETE /api/v1/cache?kind=ApiCall
func (h *ExecutionHandler) InvalidateCache(c echo.Context) error {
	kind := c.QueryParam("kind")
	h.container.Cache.Invalidate(kind)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"invalidated": true,
		"kind":        kind,
	})
}

// errorResponse maps the error taxonomy onto HTTP status codes.
func (h *ExecutionHandler) errorResponse(c echo.Context, err error) error {
	e := errs.From(err)
	status := http.StatusInternalServerError
	switch e.Category {
	case errs.CategoryStructure, errs.CategoryValidation, errs.CategoryData:
		status = http.StatusBadRequest
	case errs.CategoryAuthorization:
		status = http.StatusForbidden
	case errs.CategoryRateLimit:
		status = http.StatusTooManyRequests
	case errs.CategoryResource:
		status = http.StatusRequestEntityTooLarge
	}
	return c.JSON(status, map[string]interface{}{"error": e})
}
