package bridge

import "time"

// Limits and timeouts for the rendezvous broker.
const (
	// MaxBufferSize caps the discrimination buffer accumulated while a
	// connection's role is still UNKNOWN.
	MaxBufferSize = 4096

	// MaxPendingPlayers caps the pending-players table's cardinality.
	MaxPendingPlayers = 1000

	// MaxPlayerOutboundBuffer caps the PLAYER's outbound byte buffer
	// between classification and pairing. The source left this
	// unbounded; this rewrite caps it.
	MaxPlayerOutboundBuffer = 64 * 1024

	// MaxConnPerIPSecond is the per-IP accept-rate cap.
	MaxConnPerIPSecond = 20

	// MaxAuthAttempts before an IP is locked out.
	MaxAuthAttempts = 5

	// HandshakeTimeout bounds how long a connection may remain UNKNOWN.
	HandshakeTimeout = 5 * time.Second

	// PendingTimeout bounds how long a PLAYER may wait in the
	// pending-players table for its agent to dial back.
	PendingTimeout = 10 * time.Second

	// AuthLockout is how long an IP stays locked out after hitting
	// MaxAuthAttempts.
	AuthLockout = 60 * time.Second

	// IPStateSweepInterval is how often stale IP-state entries are reaped.
	IPStateSweepInterval = 60 * time.Second

	// ipStateIdleGrace is how long after its lockout elapses an IP-state
	// entry must additionally sit idle before the sweep removes it.
	ipStateIdleGrace = 60 * time.Second
)
