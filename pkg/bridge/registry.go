package bridge

import (
	"sync"

	"go.tunwire.dev/bridge/pkg/metrics"
)

// agentRegistry maps agent_id to its AGENT_CONTROL connection. Every
// value has role==roleAgentControl and is authenticated; keys are
// unique — registering an in-use key fails.
type agentRegistry struct {
	mu      sync.Mutex
	agents  map[string]*conn
	metrics metrics.Registry
}

func newAgentRegistry() *agentRegistry {
	return &agentRegistry{agents: make(map[string]*conn), metrics: metrics.Nop}
}

// register binds id to c, failing if id is already taken.
func (r *agentRegistry) register(id string, c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		return false
	}
	r.agents[id] = c
	r.metrics.Gauge("bridge_agents_connected").Set(float64(len(r.agents)))
	return true
}

// get returns the AGENT_CONTROL connection for id, if any.
func (r *agentRegistry) get(id string) (*conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.agents[id]
	return c, ok
}

// getDefault returns agents["default"], if registered.
func (r *agentRegistry) getDefault() (*conn, bool) {
	return r.get("default")
}

// getAny returns an arbitrary registered agent. Only used when
// AllowAnyAgentFallback is enabled.
func (r *agentRegistry) getAny() (*conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.agents {
		return c, true
	}
	return nil, false
}

// unregister removes id, but only if its current value is still c — a
// reconnected agent may have already replaced the entry by the time the
// old connection's teardown runs.
func (r *agentRegistry) unregister(id string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.agents[id]; ok && cur == c {
		delete(r.agents, id)
		r.metrics.Gauge("bridge_agents_connected").Set(float64(len(r.agents)))
	}
}

// len reports the number of registered agents (observability only).
func (r *agentRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
