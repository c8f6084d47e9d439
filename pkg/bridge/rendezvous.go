package bridge

import (
	"strings"

	"github.com/google/uuid"

	"go.tunwire.dev/bridge/pkg/varint"
)

// classifyPlayer converts an unclassified connection into a PLAYER: eff is the
// bytes read so far that didn't match any agent command prefix.
func (c *conn) classifyPlayer(eff []byte) {
	c.cancelHandshakeTimeout()
	if !c.setRole(rolePlayer) {
		return // already classified by a racing call; shouldn't happen, but don't downgrade
	}

	target := c.resolveTargetAgent(eff)
	if target == nil {
		c.log.Debugw("no agent available to route player to, closing", "remoteIP", c.remoteIP)
		c.close()
		return
	}

	if c.b.pending.len() >= MaxPendingPlayers {
		c.log.Debugw("pending-players table full, closing player", "remoteIP", c.remoteIP)
		c.close()
		return
	}

	id := uuid.NewString()
	c.connID = id
	initial := append([]byte(nil), eff...)
	c.outbound.PushBack(initial)
	c.outboundSize = len(initial)

	if !c.b.pending.add(id, c) {
		c.log.Debugw("pending-players table full, closing player", "remoteIP", c.remoteIP)
		c.close()
		return
	}
	c.armPendingTimeout(id)

	if err := target.writeLine("CONNECT " + id); err != nil {
		c.b.pending.removeIfSame(id, c)
		c.close()
	}
}

// resolveTargetAgent derives the agent the player should be routed to
// from the (best-effort) Minecraft handshake in eff, falling back to
// agents["default"] and, only if AllowAnyAgentFallback is set, to an
// arbitrary registered agent.
func (c *conn) resolveTargetAgent(eff []byte) *conn {
	agentID := ""
	if hs, err := varint.DecodeHandshake(eff); err == nil {
		agentID = c.b.deriveAgentID(hs.ServerAddress)
	}

	if agentID != "" {
		if a, ok := c.b.registry.get(agentID); ok {
			return a
		}
	}
	if a, ok := c.b.registry.getDefault(); ok {
		return a
	}
	if c.b.cfg.AllowAnyAgentFallback {
		if a, ok := c.b.registry.getAny(); ok {
			return a
		}
	}
	return nil
}

// deriveAgentID extracts the routing label from a handshake's
// serverAddress.
func (b *Broker) deriveAgentID(serverAddress string) string {
	if b.cfg.Domain != "" {
		suffix := "." + b.cfg.Domain
		if strings.HasSuffix(serverAddress, suffix) {
			label := strings.TrimSuffix(serverAddress, suffix)
			if label != "" && !strings.Contains(label, ".") {
				return label
			}
			return ""
		}
	}
	if idx := strings.IndexByte(serverAddress, '.'); idx >= 0 {
		return serverAddress[:idx]
	}
	return serverAddress
}

// handleDataCommand handles a DATA command: line is "DATA <conn_id>",
// suffix is whatever payload the agent coalesced into the same write.
func (c *conn) handleDataCommand(line string, suffix []byte) {
	if !c.setRole(roleAgentData) {
		return
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		c.log.Debugw("malformed DATA command, closing", "line", line)
		c.close()
		return
	}
	id := fields[1]

	player, ok := c.b.pending.pop(id)
	if !ok {
		c.log.Debugw("DATA for unknown/expired conn_id, closing", "connID", id)
		c.close()
		return
	}
	player.cancelPendingTimeout()

	c.connID = id
	c.pairWith(player)

	// suffix is bytes the agent already read from the local service before
	// sending its DATA line; it goes to the player first, then the player's own buffered bytes flush out to us
	// (step 4). Both happen on this goroutine, so their relative order on
	// the wire is exactly this order.
	if len(suffix) > 0 {
		if err := player.writeRaw(suffix); err != nil {
			c.close()
			return
		}
	}
	if err := player.pairAndFlushTo(c); err != nil {
		c.close()
		return
	}
}
