package bridge

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/atomic"

	"go.tunwire.dev/bridge/pkg/logging"
)

// errOutboundBufferFull is returned when a not-yet-paired connection's
// pre-pairing buffer would exceed MaxPlayerOutboundBuffer.
var errOutboundBufferFull = errors.New("bridge: outbound buffer full")

// role is a connection's position in the rendezvous.
// It is monotonic: once non-roleUnknown, it never changes again.
type role int32

const (
	roleUnknown role = iota
	roleAgentControl
	roleAgentData
	rolePlayer
)

func (r role) String() string {
	switch r {
	case roleAgentControl:
		return "AGENT_CONTROL"
	case roleAgentData:
		return "AGENT_DATA"
	case rolePlayer:
		return "PLAYER"
	default:
		return "UNKNOWN"
	}
}

// conn is one accepted socket and everything needed to classify and, once
// classified, splice it. It is exclusively owned by the goroutine running
// its readLoop, except for the fields explicitly guarded by mu below,
// which other connections' goroutines touch during pairing.
type conn struct {
	b        *Broker
	nc       net.Conn
	remoteIP string
	log      logging.Logger

	// mu guards role, peer, and the outbound buffer, all of which a
	// pairing AGENT_DATA connection running on a different goroutine may
	// read or mutate.
	mu       sync.Mutex
	role     role
	peer     *conn
	outbound deque.Deque[[]byte]
	outboundSize int

	agentID string
	connID  string

	// unknownBuf accumulates bytes while role==roleUnknown. It is only
	// ever touched by this connection's own readLoop goroutine.
	unknownBuf []byte

	closed    atomic.Bool
	closeOnce sync.Once

	handshakeTimer *time.Timer
	pendingTimer   *time.Timer
}

func newConn(b *Broker, nc net.Conn, remoteIP string) *conn {
	return &conn{
		b:        b,
		nc:       nc,
		remoteIP: remoteIP,
		log:      b.log,
	}
}

func (c *conn) getRole() role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// setRole transitions role from roleUnknown to r. It reports false (and
// does nothing) if role is already something else, enforcing the
// no-downgrade invariant.
func (c *conn) setRole(r role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != roleUnknown {
		return false
	}
	c.role = r
	return true
}

func (c *conn) getPeer() *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// pairWith sets c.peer = other under lock. Callers are responsible for
// the symmetric call on other.
func (c *conn) pairWith(other *conn) {
	c.mu.Lock()
	c.peer = other
	c.mu.Unlock()
}

// appendOrForward is the one place bytes coming off c's read loop either
// queue (peer not yet assigned) or go straight out to peer. The
// peer-check, the drain, and the write all happen under c.mu so this can
// never interleave with pairAndFlushTo assigning c.peer and draining the
// same queue from another goroutine.
func (c *conn) appendOrForward(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		if c.outboundSize+len(chunk) > MaxPlayerOutboundBuffer {
			return errOutboundBufferFull
		}
		c.outbound.PushBack(append([]byte(nil), chunk...))
		c.outboundSize += len(chunk)
		return nil
	}
	return c.peer.writeRaw(chunk)
}

// pairAndFlushTo assigns dst as c's peer and writes out everything queued
// in c's outbound buffer, in order, while holding c.mu throughout so no
// chunk arriving concurrently on c's own read loop can be written to dst
// out of order.
func (c *conn) pairAndFlushTo(dst *conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = dst
	for c.outbound.Len() > 0 {
		chunk := c.outbound.PopFront()
		if err := dst.writeRaw(chunk); err != nil {
			return err
		}
	}
	c.outboundSize = 0
	return nil
}

// writeRaw writes b verbatim to the underlying socket, looping until all
// of it is written or an error occurs.
func (c *conn) writeRaw(b []byte) error {
	for len(b) > 0 {
		n, err := c.nc.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// writeLine writes s followed by '\n' on the control channel.
func (c *conn) writeLine(s string) error {
	return c.writeRaw([]byte(s + "\n"))
}

func (c *conn) armHandshakeTimeout() {
	c.handshakeTimer = time.AfterFunc(HandshakeTimeout, func() {
		if c.getRole() == roleUnknown {
			c.log.Debugw("handshake timeout, closing", "remoteIP", c.remoteIP)
			c.close()
		}
	})
}

func (c *conn) cancelHandshakeTimeout() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
	}
}

func (c *conn) armPendingTimeout(id string) {
	c.pendingTimer = time.AfterFunc(PendingTimeout, func() {
		c.b.pending.removeIfSame(id, c)
		c.log.Debugw("pending timeout, closing player", "connID", id)
		c.close()
	})
}

func (c *conn) cancelPendingTimeout() {
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
}

// close tears the connection down exactly once and, if paired, cascades
// the close to the peer.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancelHandshakeTimeout()
		c.cancelPendingTimeout()
		_ = c.nc.Close()

		switch c.getRole() {
		case roleAgentControl:
			if c.agentID != "" {
				c.b.registry.unregister(c.agentID, c)
			}
		case rolePlayer:
			if c.connID != "" {
				c.b.pending.removeIfSame(c.connID, c)
			}
		}

		if peer := c.getPeer(); peer != nil {
			peer.close()
		}
	})
}

func (c *conn) isClosed() bool {
	return c.closed.Load()
}
