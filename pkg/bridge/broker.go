// Package bridge implements the Bridge Broker (spec component D): the
// single listening port that discriminates agent-control, agent-data, and
// player connections from their first bytes and rendezvous them.
package bridge

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"go.tunwire.dev/bridge/pkg/auth"
	"go.tunwire.dev/bridge/pkg/config"
	"go.tunwire.dev/bridge/pkg/logging"
	"go.tunwire.dev/bridge/pkg/metrics"
)

// Broker owns the listening socket and every piece of shared state a conn
// needs to classify and rendezvous itself.
type Broker struct {
	cfg     config.BridgeConfig
	log     logging.Logger
	metrics metrics.Registry

	tokens   *auth.Manager
	registry *agentRegistry
	pending  *pendingPlayers
	ips      *ipStates

	ln    net.Listener
	ready chan struct{}
}

// New constructs a Broker from cfg. Validate cfg with config.ValidateBridge
// before calling this.
func New(cfg config.BridgeConfig, log logging.Logger, reg metrics.Registry) *Broker {
	if log == nil {
		log = logging.Nop
	}
	if reg == nil {
		reg = metrics.Nop
	}
	registry := newAgentRegistry()
	registry.metrics = reg
	pending := newPendingPlayers()
	pending.metrics = reg

	return &Broker{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		tokens: auth.NewManager(auth.Config{
			CodeTTL:           cfg.Auth.CodeTTL(),
			TokenTTL:          cfg.Auth.TokenTTL(),
			MaxTokensPerAgent: int(cfg.Auth.MaxTokensPerAgent),
		}),
		registry: registry,
		pending:  pending,
		ips:      newIPStates(),
		ready:    make(chan struct{}),
	}
}

// Addr blocks until Run has bound its listening socket, then returns its
// address. Used by tests that bind to port 0 and need the chosen port.
func (b *Broker) Addr() net.Addr {
	<-b.ready
	return b.ln.Addr()
}

// Run binds the listening port and serves until ctx is cancelled, or an
// accept fails unrecoverably. It returns once the listener and the
// IP-state sweeper have stopped; already-accepted connections keep
// running their own read loops independently. A read loop checks ctx only
// between reads, so a connection blocked in Read stays open after ctx is
// cancelled until its next read returns (data, peer hang-up, or a close
// by one of its timers).
func (b *Broker) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", b.cfg.Port))
	if err != nil {
		return fmt.Errorf("bridge: listen: %w", err)
	}
	b.ln = ln
	close(b.ready)
	b.log.Infow("bridge listening", "port", b.cfg.Port)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.ips.runSweeper(ctx.Done())
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		return b.acceptLoop(ctx, ln)
	})

	return g.Wait()
}

// acceptLoop accepts connections until ln is closed. A close caused by ctx
// cancellation is treated as a clean stop; any other close (including
// Shutdown while ctx is still live) is returned as an accept error.
func (b *Broker) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: accept: %w", err)
		}
		go b.handleConn(ctx, nc)
	}
}

// handleConn is spawned once per accepted socket. It enforces the per-IP
// connection-rate cap before doing anything else, then
// hands the connection to its own read loop.
func (b *Broker) handleConn(ctx context.Context, nc net.Conn) {
	remoteIP, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		remoteIP = nc.RemoteAddr().String()
	}

	if !b.ips.allowConnect(remoteIP) {
		b.log.Debugw("per-IP connection rate exceeded, closing", "remoteIP", remoteIP)
		b.metrics.Counter("bridge_connections_rejected_rate_limit_total").Inc()
		_ = nc.Close()
		return
	}

	b.metrics.Counter("bridge_connections_accepted_total").Inc()
	c := newConn(b, nc, remoteIP)
	c.armHandshakeTimeout()
	c.readLoop(ctx)
}

// Shutdown closes the listening socket, causing Run's accept loop to
// return with an accept error (which also ends Run). In-flight connections
// are left to close on their own.
func (b *Broker) Shutdown() error {
	if b.ln == nil {
		return nil
	}
	return b.ln.Close()
}
