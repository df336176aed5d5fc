package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyzr/a2e/cmd/a2e-server/container"
	"github.com/lyzr/a2e/cmd/a2e-server/routes"
	"github.com/lyzr/a2e/common/config"
	"github.com/lyzr/a2e/common/logger"
	"github.com/lyzr/a2e/common/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("a2e-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	c, err := container.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize a2e-server: %v\n", err)
		os.Exit(1)
	}
	defer c.Shutdown(ctx)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e)
	setupMetrics(e)
	routes.RegisterExecutionRoutes(e, c)

	srv := server.New("a2e-server", cfg.Service.Port, e, cfg.Limits.MaxWorkflowDuration, log)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "a2e-server",
		})
	})
}

// setupMetrics exposes the Prometheus scrape endpoint
func setupMetrics(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
