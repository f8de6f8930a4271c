// Package agent defines the uniform result envelope and invocation contract
// shared by the analysis agents, plus the registry the coordinator resolves
// agents from. Concrete agents live in the cost, inventory, and architecture
// subpackages.
package agent

import (
	"context"
	"time"
)

// Well-known agent names.
const (
	CostIntelligence           = "cost_intelligence"
	OperationsIntelligence     = "operations_intelligence"
	InfrastructureIntelligence = "infrastructure_intelligence"
)

// ReasonAgentNotFound is the envelope error for an unknown agent name.
const ReasonAgentNotFound = "agent_not_found"

type (
	// Request is the closed invocation payload. Action selects the
	// operation within an agent; an empty Action runs the agent's default
	// analysis. Requirements is set only for architecture generation.
	Request struct {
		Action       string        `json:"action,omitempty"`
		Requirements *Requirements `json:"requirements,omitempty"`
	}

	// Requirements is a declarative architecture request.
	Requirements struct {
		Type        string  `json:"type"`
		Scale       string  `json:"scale"`
		Environment string  `json:"environment"`
		Database    string  `json:"database,omitempty"`
		BudgetLimit float64 `json:"budget_limit,omitempty"`
	}

	// Result is the envelope every agent invocation returns. Success=true
	// implies Error is empty. Failure envelopes usually carry no Data, but
	// the coordinator attaches its report to all-failed runs so callers
	// still see baseline scores and the per-agent error list.
	Result struct {
		Success   bool      `json:"success"`
		Agent     string    `json:"agent"`
		Data      any       `json:"data,omitempty"`
		Error     string    `json:"error,omitempty"`
		Message   string    `json:"message,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Agent is the capability the coordinator depends on. Invoke returns a
	// failure envelope, not a Go error, when the provider is unavailable;
	// the error return is reserved for internal bugs (and triggers the
	// coordinator's internal-error path, not the degrade path).
	Agent interface {
		Name() string
		Invoke(ctx context.Context, req Request) (*Result, error)
	}
)

// OK builds a success envelope.
func OK(name string, data any) *Result {
	return &Result{Success: true, Agent: name, Data: data, Timestamp: time.Now().UTC()}
}

// Fail builds a failure envelope. reason is one of the stable taxonomy
// identifiers; message is human-readable detail.
func Fail(name, reason, message string) *Result {
	return &Result{Agent: name, Error: reason, Message: message, Timestamp: time.Now().UTC()}
}

// Registry resolves agents by name. It is immutable after construction, so
// concurrent orchestration runs can share one instance.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds a registry from the given agents.
func NewRegistry(agents ...Agent) *Registry {
	m := make(map[string]Agent, len(agents))
	for _, a := range agents {
		m[a.Name()] = a
	}
	return &Registry{agents: m}
}

// Lookup returns the agent registered under name.
func (r *Registry) Lookup(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Invoke resolves and invokes the named agent. An unknown name yields an
// agent_not_found failure envelope rather than an error.
func (r *Registry) Invoke(ctx context.Context, name string, req Request) (*Result, error) {
	a, ok := r.agents[name]
	if !ok {
		return Fail(name, ReasonAgentNotFound, "agent "+name+" is not configured"), nil
	}
	return a.Invoke(ctx, req)
}
