// Package agent defines the catalog-provider contract: the filtered
// view of operation kinds, API hosts and credentials an authenticated
// agent is allowed to use.
package agent

import (
	"context"
	"fmt"
	"sync"
)

// CredentialGrant names a credential an agent may reference.
type CredentialGrant struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AllowedCatalog is the permission snapshot for one agent.
type AllowedCatalog struct {
	// OperationKinds the agent may invoke.
	OperationKinds map[string]bool
	// APIs maps allowed hosts to their known endpoint paths.
	APIs map[string][]string
	// Credentials the agent may reference.
	Credentials []CredentialGrant
}

// AllowsKind reports whether the agent may invoke kind.
func (c *AllowedCatalog) AllowsKind(kind string) bool {
	return c.OperationKinds[kind]
}

// AllowsHost reports whether the agent may call host.
func (c *AllowedCatalog) AllowsHost(host string) bool {
	_, ok := c.APIs[host]
	return ok
}

// AllowsCredential reports whether the agent may reference credentialID.
func (c *AllowedCatalog) AllowsCredential(credentialID string) bool {
	for _, grant := range c.Credentials {
		if grant.ID == credentialID {
			return true
		}
	}
	return false
}

// CatalogProvider supplies per-agent permission snapshots. The semantic
// search index that pre-filters the catalog lives behind this interface.
type CatalogProvider interface {
	GetAllowedCatalog(ctx context.Context, agentID string) (*AllowedCatalog, error)
}

// StaticProvider is an in-memory CatalogProvider for tests and
// single-node deployments.
type StaticProvider struct {
	mu     sync.RWMutex
	agents map[string]*AllowedCatalog
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{agents: make(map[string]*AllowedCatalog)}
}

// Register stores the catalog snapshot for an agent.
func (p *StaticProvider) Register(agentID string, catalog *AllowedCatalog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[agentID] = catalog
}

// GetAllowedCatalog implements CatalogProvider.
func (p *StaticProvider) GetAllowedCatalog(_ context.Context, agentID string) (*AllowedCatalog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	catalog, ok := p.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", agentID)
	}
	return catalog, nil
}
