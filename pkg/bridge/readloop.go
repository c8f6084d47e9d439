package bridge

import (
	"context"
)

// readLoop is the single goroutine that ever calls Read on c.nc. It owns
// c.unknownBuf and drives the role-discrimination state machine
// until a terminal role is reached, after which it keeps
// pumping bytes to the paired peer (or into the pre-pairing outbound
// buffer) for the rest of the connection's life.
func (c *conn) readLoop(ctx context.Context) {
	defer c.close()

	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.onChunk(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (c *conn) onChunk(chunk []byte) {
	switch c.getRole() {
	case roleUnknown:
		c.onChunkUnknown(chunk)
	case rolePlayer, roleAgentData:
		c.onChunkPaired(chunk)
	case roleAgentControl:
		// The control channel only carries the one AUTH line; anything
		// an agent sends afterwards is ignored (we still need to keep
		// reading to notice the socket close).
	}
}

// onChunkPaired forwards chunk verbatim to the peer if one is already
// set, or buffers it (pre-pairing) for later flush. This is the only
// place bytes move once a connection has a terminal, non-AGENT_CONTROL
// role — no re-framing, byte-transparent.
func (c *conn) onChunkPaired(chunk []byte) {
	if err := c.appendOrForward(chunk); err != nil {
		c.log.Debugw("failed to forward or buffer chunk, closing", "connID", c.connID, "error", err)
		c.close()
	}
}
