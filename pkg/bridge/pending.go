package bridge

import (
	"sync"

	"go.tunwire.dev/bridge/pkg/metrics"
)

// pendingPlayers maps conn_id to the PLAYER connection awaiting its
// AGENT_DATA peer. Invariant: len() <= MaxPendingPlayers at all times.
type pendingPlayers struct {
	mu      sync.Mutex
	players map[string]*conn
	metrics metrics.Registry
}

func newPendingPlayers() *pendingPlayers {
	return &pendingPlayers{players: make(map[string]*conn), metrics: metrics.Nop}
}

func (p *pendingPlayers) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.players)
}

// add inserts id->c, refusing if the table is already at MaxPendingPlayers.
func (p *pendingPlayers) add(id string, c *conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.players) >= MaxPendingPlayers {
		return false
	}
	p.players[id] = c
	p.metrics.Gauge("bridge_pending_players").Set(float64(len(p.players)))
	return true
}

// pop removes and returns id's PLAYER connection, if still pending.
func (p *pendingPlayers) pop(id string) (*conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.players[id]
	if ok {
		delete(p.players, id)
		p.metrics.Gauge("bridge_pending_players").Set(float64(len(p.players)))
	}
	return c, ok
}

// removeIfSame drops id from the table, but only if its current value is
// still c (guards against a race between a late pending-timeout firing
// and a just-arrived DATA already having popped it).
func (p *pendingPlayers) removeIfSame(id string, c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.players[id]; ok && cur == c {
		delete(p.players, id)
		p.metrics.Gauge("bridge_pending_players").Set(float64(len(p.players)))
	}
}
