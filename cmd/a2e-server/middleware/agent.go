package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// AgentIDKey is the context key for the authenticated agent ID
	AgentIDKey ContextKey = "agent_id"
)

// ExtractAgent requires the X-Agent-ID header and stores it in the
// request context. Requests without it are rejected before any parsing
// happens.
func ExtractAgent() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			agentID := c.Request().Header.Get("X-Agent-ID")
			if agentID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-Agent-ID header is required",
				})
			}
			c.Set(string(AgentIDKey), agentID)
			return next(c)
		}
	}
}

// GetAgentID retrieves the agent ID from the request context
func GetAgentID(c echo.Context) string {
	agentID := c.Get(string(AgentIDKey))
	if agentID == nil {
		return ""
	}
	return agentID.(string)
}
