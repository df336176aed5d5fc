package container

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lyzr/a2e/common/ratelimit"
	"github.com/lyzr/a2e/engine/agent"
)

// seedFile is the JSON shape of the SEED_FILE: agent permission
// snapshots, per-agent rate limit overrides, and credential values for
// deployments without an external vault.
type seedFile struct {
	Agents      map[string]seedAgent      `json:"agents"`
	Credentials map[string]seedCredential `json:"credentials"`
}

type seedAgent struct {
	OperationKinds []string                `json:"operationKinds"`
	APIs           map[string][]string     `json:"apis"`
	Credentials    []agent.CredentialGrant `json:"credentials"`
	RateLimits     *seedLimits             `json:"rateLimits"`
}

type seedLimits struct {
	RequestsPerMinute int `json:"requestsPerMinute"`
	RequestsPerHour   int `json:"requestsPerHour"`
	RequestsPerDay    int `json:"requestsPerDay"`
	APICallsPerMinute int `json:"apiCallsPerMinute"`
	APICallsPerHour   int `json:"apiCallsPerHour"`
}

type seedCredential struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// loadSeed populates the agent provider and credential resolver from
// the file named by SEED_FILE. No file means an empty registry; agents
// are then rejected until one is registered through other means.
func (c *Container) loadSeed() error {
	path := os.Getenv("SEED_FILE")
	if path == "" {
		c.Logger.Warn("SEED_FILE not set; no agents registered")
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for agentID, entry := range seed.Agents {
		kinds := make(map[string]bool, len(entry.OperationKinds))
		for _, kind := range entry.OperationKinds {
			kinds[kind] = true
		}
		c.Agents.Register(agentID, &agent.AllowedCatalog{
			OperationKinds: kinds,
			APIs:           entry.APIs,
			Credentials:    entry.Credentials,
		})
		if entry.RateLimits != nil {
			c.Limiter.SetAgentLimits(agentID, ratelimit.Limits{
				RequestsPerMinute: entry.RateLimits.RequestsPerMinute,
				RequestsPerHour:   entry.RateLimits.RequestsPerHour,
				RequestsPerDay:    entry.RateLimits.RequestsPerDay,
				APICallsPerMinute: entry.RateLimits.APICallsPerMinute,
				APICallsPerHour:   entry.RateLimits.APICallsPerHour,
			})
		}
	}
	for credID, cred := range seed.Credentials {
		c.Credentials.Store(credID, cred.Type, cred.Value)
	}

	c.Logger.Info("seed loaded", "agents", len(seed.Agents), "credentials", len(seed.Credentials))
	return nil
}
