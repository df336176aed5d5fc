// Package container wires the engine and its collaborators from
// configuration. Everything is created once at startup.
package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lyzr/a2e/common/audit"
	"github.com/lyzr/a2e/common/cache"
	"github.com/lyzr/a2e/common/config"
	"github.com/lyzr/a2e/common/db"
	"github.com/lyzr/a2e/common/logger"
	"github.com/lyzr/a2e/common/metrics"
	"github.com/lyzr/a2e/common/ratelimit"
	redisclient "github.com/lyzr/a2e/common/redis"
	"github.com/lyzr/a2e/common/retry"
	"github.com/lyzr/a2e/common/storage"
	"github.com/lyzr/a2e/engine/agent"
	"github.com/lyzr/a2e/engine/catalog"
	"github.com/lyzr/a2e/engine/credential"
	"github.com/lyzr/a2e/engine/executor"
)

// Container holds the singletons behind the HTTP handlers.
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	Engine      *executor.Engine
	Cache       *cache.ResultCache
	Limiter     *ratelimit.Limiter
	Agents      *agent.StaticProvider
	Credentials *credential.StaticResolver

	redis *redisclient.Client
	pg    *db.DB
}

// New builds the container. Redis and Postgres connections are opened
// only when the configured audit sink needs them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config:      cfg,
		Logger:      log,
		Agents:      agent.NewStaticProvider(),
		Credentials: credential.NewStaticResolver(),
	}

	cat, err := catalog.NewBuiltin()
	if err != nil {
		return nil, fmt.Errorf("build operation catalog: %w", err)
	}

	auditLog, err := c.buildAuditSink(ctx)
	if err != nil {
		return nil, err
	}

	storageRegistry, err := storage.NewDefaultRegistry(cfg.Storage.FileDir)
	if err != nil {
		return nil, fmt.Errorf("init storage backends: %w", err)
	}
	if c.redis != nil {
		storageRegistry.Register("redis", storage.NewRedis(c.redis.GetUnderlying(), "", 0))
	}

	c.Limiter = ratelimit.New(ratelimit.Limits{
		RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
		RequestsPerHour:   cfg.RateLimits.RequestsPerHour,
		RequestsPerDay:    cfg.RateLimits.RequestsPerDay,
		APICallsPerMinute: cfg.RateLimits.APICallsPerMinute,
		APICallsPerHour:   cfg.RateLimits.APICallsPerHour,
	}, cfg.RateLimits.ThrottleDelay, log)
	c.Limiter.StartReaper(ctx, time.Hour)

	c.Cache = cache.New(cache.Config{
		Enabled:    cfg.Cache.Enabled,
		DefaultTTL: cfg.Cache.DefaultTTL,
		MaxSize:    cfg.Cache.MaxSize,
		PerKindTTL: cfg.Cache.PerKindTTL,
	})

	c.Engine = executor.New(executor.Options{
		Catalog:     cat,
		Agents:      c.Agents,
		Credentials: c.Credentials,
		Limiter:     c.Limiter,
		Cache:       c.Cache,
		Retry: retry.New(retry.Config{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			BackoffBase:  cfg.Retry.BackoffBase,
			Jitter:       cfg.Retry.Jitter,
		}),
		Audit:   auditLog,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
		HTTP:    &http.Client{Timeout: 0},
		Storage: storageRegistry,
		Logger:  log,
		Limits: executor.Limits{
			MaxOperations: cfg.Limits.MaxOperationsPerWorkflow,
			MaxDuration:   cfg.Limits.MaxWorkflowDuration,
			MaxDataBytes:  cfg.Limits.MaxDataModelBytes,
		},
		Projection: executor.Projection{
			MaxStringLength: cfg.Response.MaxStringLength,
			MaxArrayLength:  cfg.Response.MaxArrayLength,
		},
	})

	if err := c.loadSeed(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildAuditSink(ctx context.Context) (audit.Log, error) {
	switch c.Config.Audit.Sink {
	case "redis":
		client, err := redisclient.Connect(ctx, c.Config.Redis, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis for audit sink: %w", err)
		}
		c.redis = client
		return audit.NewRedisLog(client.GetUnderlying(), c.Config.Audit.Stream), nil
	case "postgres":
		pool, err := db.New(ctx, c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres for audit sink: %w", err)
		}
		c.pg = pool
		return audit.NewPostgresLog(pool.Pool), nil
	default:
		return audit.NewMemoryLog(10000), nil
	}
}

// Shutdown releases external connections.
func (c *Container) Shutdown(_ context.Context) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.Logger.Error("close redis", "error", err)
		}
	}
	if c.pg != nil {
		c.pg.Close()
	}
}
