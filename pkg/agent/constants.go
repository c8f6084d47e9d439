package agent

import "time"

// Limits and timeouts for the tunnel agent.
const (
	// ControlBufferCap bounds the control channel's line buffer.
	ControlBufferCap = 16 * 1024

	// MaxPendingBufferSize bounds bytes buffered from the local service
	// before its data channel is established.
	MaxPendingBufferSize = 1024 * 1024

	// MaxConcurrentConnections caps simultaneous player tunnels.
	MaxConcurrentConnections = 50

	// ReconnectDelay is how long the agent waits before re-dialling the
	// Bridge after its control channel drops.
	ReconnectDelay = 5 * time.Second

	// DialTimeout bounds dialling either the Bridge or the local service.
	DialTimeout = 10 * time.Second
)
