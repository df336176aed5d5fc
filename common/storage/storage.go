// Package storage defines the backend interface StoreData delegates to,
// plus memory, file, and Redis implementations.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage persists operation data under a named key.
type Storage interface {
	Store(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string) (any, error)
}

// Backend names recognized by the StoreData operation.
const (
	BackendLocal   = "localStorage"
	BackendSession = "sessionStorage"
	BackendFile    = "file"
)

// Memory is a map-backed Storage. Both localStorage and sessionStorage
// map to Memory instances on the server; sessionStorage contents are
// scoped to the process lifetime either way.
type Memory struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemory creates an empty memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]any)}
}

// Store implements Storage.
func (m *Memory) Store(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Load implements Storage.
func (m *Memory) Load(_ context.Context, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return value, nil
}

var safeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,200}$`)

// File persists values as JSON files under a root directory.
type File struct {
	root string
}

// NewFile creates a file backend rooted at dir.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{root: dir}, nil
}

// Store implements Storage. Keys are restricted to a safe character
// set so they cannot escape the root directory.
func (f *File) Store(_ context.Context, key string, value any) error {
	if !safeKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid storage key: %s", key)
	}
	js, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	return os.WriteFile(filepath.Join(f.root, key+".json"), js, 0o644)
}

// Load implements Storage.
func (f *File) Load(_ context.Context, key string) (any, error) {
	if !safeKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("invalid storage key: %s", key)
	}
	js, err := os.ReadFile(filepath.Join(f.root, key+".json"))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(js, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, nil
}

// Redis persists values as JSON strings in Redis.
type Redis struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis backend. ttl of zero keeps entries forever.
func NewRedis(redisClient *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "a2e:storage:"
	}
	return &Redis{redis: redisClient, prefix: prefix, ttl: ttl}
}

// Store implements Storage.
func (r *Redis) Store(ctx context.Context, key string, value any) error {
	js, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	if err := r.redis.Set(ctx, r.prefix+key, js, r.ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Load implements Storage.
func (r *Redis) Load(ctx context.Context, key string) (any, error) {
	js, err := r.redis.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(js, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, nil
}
