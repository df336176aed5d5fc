// Package credential defines the credential-resolver contract and the
// injector that replaces credentialRef markers inside operation
// arguments with formatted secret values. Resolution happens once,
// after validation and immediately before dispatch; the resolved view
// never re-enters cache keying or audit events.
package credential

import (
	"context"
	"fmt"
	"sync"
)

// Credential types with dedicated formatting rules.
const (
	TypeBearerToken = "bearer-token"
	TypeAPIKey      = "api-key"
)

// Resolver maps a credential ID to its plaintext value and type. It
// must only be called from within the executor; agents never see it.
type Resolver interface {
	Resolve(ctx context.Context, credentialID string) (value, credType string, err error)
}

// Format renders a resolved credential per its type's formatting rule.
func Format(value, credType string) string {
	switch credType {
	case TypeBearerToken:
		return "Bearer " + value
	case TypeAPIKey:
		return value
	default:
		return value
	}
}

// refID extracts the credential ID when value is a credentialRef
// marker: {"credentialRef": {"id": "..."}}
func refID(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	ref, ok := m["credentialRef"].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := ref["id"].(string)
	return id, ok && id != ""
}

// ContainsRef reports whether a value tree holds any credentialRef
// marker. ApiCall cacheability depends on this.
func ContainsRef(value any) bool {
	if _, ok := refID(value); ok {
		return true
	}
	switch v := value.(type) {
	case map[string]any:
		for _, val := range v {
			if ContainsRef(val) {
				return true
			}
		}
	case []any:
		for _, val := range v {
			if ContainsRef(val) {
				return true
			}
		}
	}
	return false
}

// RefIDs collects every credential ID referenced in a value tree.
func RefIDs(value any) []string {
	var ids []string
	collectRefIDs(value, &ids)
	return ids
}

func collectRefIDs(value any, ids *[]string) {
	if id, ok := refID(value); ok {
		*ids = append(*ids, id)
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for _, val := range v {
			collectRefIDs(val, ids)
		}
	case []any:
		for _, val := range v {
			collectRefIDs(val, ids)
		}
	}
}

// Injector resolves credentialRef markers through a Resolver.
type Injector struct {
	resolver Resolver
}

// NewInjector creates an injector.
func NewInjector(resolver Resolver) *Injector {
	return &Injector{resolver: resolver}
}

// Inject returns a copy of args with every credentialRef marker
// replaced by its formatted value, plus the list of credential IDs that
// were resolved (for audit events, which never carry the values).
func (i *Injector) Inject(ctx context.Context, args map[string]any) (map[string]any, []string, error) {
	var used []string
	resolved, err := i.inject(ctx, args, &used)
	if err != nil {
		return nil, nil, err
	}
	return resolved.(map[string]any), used, nil
}

func (i *Injector) inject(ctx context.Context, value any, used *[]string) (any, error) {
	if id, ok := refID(value); ok {
		secret, credType, err := i.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve credential %s: %w", id, err)
		}
		*used = append(*used, id)
		return Format(secret, credType), nil
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			iv, err := i.inject(ctx, val, used)
			if err != nil {
				return nil, err
			}
			out[key] = iv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for idx, val := range v {
			iv, err := i.inject(ctx, val, used)
			if err != nil {
				return nil, err
			}
			out[idx] = iv
		}
		return out, nil
	default:
		return value, nil
	}
}

// StaticResolver is an in-memory Resolver for tests and development.
// Production deployments wire the encrypted vault behind the Resolver
// interface instead.
type StaticResolver struct {
	mu    sync.RWMutex
	creds map[string]staticCredential
}

type staticCredential struct {
	value    string
	credType string
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{creds: make(map[string]staticCredential)}
}

// Store registers a credential.
func (r *StaticResolver) Store(credentialID, credType, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[credentialID] = staticCredential{value: value, credType: credType}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, credentialID string) (string, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[credentialID]
	if !ok {
		return "", "", fmt.Errorf("credential not found: %s", credentialID)
	}
	return cred.value, cred.credType, nil
}
