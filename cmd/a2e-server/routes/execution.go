package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/a2e/cmd/a2e-server/container"
	"github.com/lyzr/a2e/cmd/a2e-server/handlers"
	"github.com/lyzr/a2e/cmd/a2e-server/middleware"
)

// RegisterExecutionRoutes registers workflow execution routes
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExecutionHandler(c)

	api := e.Group("/api/v1", middleware.ExtractAgent())
	{
		api.POST("/executions", h.Execute)    // POST /api/v1/executions
		api.POST("/validations", h.Validate)  // POST /api/v1/validations
		api.GET("/cache/stats", h.CacheStats) // GET  /api/v1/cache/stats
		api.DELETE("/cache", h.InvalidateCache)
	}
}
