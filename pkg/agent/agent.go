// Package agent implements the Tunnel Agent (spec component E): the
// outbound-only client that authenticates to a Bridge, accepts its
// CONNECT rendezvous requests, and splices each one to a local service.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"go.tunwire.dev/bridge/pkg/config"
	"go.tunwire.dev/bridge/pkg/logging"
	"go.tunwire.dev/bridge/pkg/metrics"
)

// Agent owns the control connection lifecycle and the set of in-flight
// player tunnels.
type Agent struct {
	cfg     config.AgentConfig
	log     logging.Logger
	metrics metrics.Registry

	// credential is sent on every AUTH line. It starts as cfg.Secret and is
	// overwritten with the token from a prior AUTH_OK, per the preference
	// recorded in DESIGN.md's open-question decision 3.
	credential atomic.String

	sem chan struct{} // bounds active tunnels to MaxConcurrentConnections

	wg sync.WaitGroup
}

// New constructs an Agent from cfg.
func New(cfg config.AgentConfig, log logging.Logger, reg metrics.Registry) *Agent {
	if log == nil {
		log = logging.Nop
	}
	if reg == nil {
		reg = metrics.Nop
	}
	a := &Agent{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		sem:     make(chan struct{}, MaxConcurrentConnections),
	}
	a.credential.Store(cfg.Secret)
	return a
}

// Run dials the Bridge, serves its control channel, and keeps
// reconnecting every ReconnectDelay until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	defer a.wg.Wait()
	first := true
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !first {
			a.metrics.Counter("agent_reconnects_total").Inc()
		}
		first = false
		if err := a.connectOnce(ctx); err != nil {
			a.log.Warnw("control connection ended", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ReconnectDelay):
		}
	}
}

// connectOnce dials the Bridge's control port, authenticates, and serves
// the control channel until it closes or errors.
func (a *Agent) connectOnce(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.BridgeHost, a.cfg.BridgeControlPort)
	d := net.Dialer{Timeout: DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("agent: dial bridge: %w", err)
	}
	defer nc.Close()

	line := "AUTH " + a.credential.Load()
	if a.cfg.Subdomain != "" {
		line += " " + a.cfg.Subdomain
	}
	if err := writeLine(nc, line); err != nil {
		return fmt.Errorf("agent: write AUTH: %w", err)
	}
	a.log.Infow("control channel connected, sent AUTH", "addr", addr)

	r := &limitedLineReader{r: bufio.NewReader(nc), max: ControlBufferCap}
	for {
		raw, err := r.readLine()
		if err != nil {
			return fmt.Errorf("agent: control channel closed: %w", err)
		}
		a.handleControlLine(ctx, raw)
	}
}

// handleControlLine dispatches one line from the control channel.
func (a *Agent) handleControlLine(ctx context.Context, line string) {
	switch {
	case strings.HasPrefix(line, "AUTH_OK"):
		a.handleAuthOK(line)
	case strings.HasPrefix(line, "AUTH_FAIL"):
		a.log.Warnw("bridge rejected AUTH", "reply", line)
	case strings.HasPrefix(line, "CONNECT "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "CONNECT "))
		a.handleConnect(ctx, id)
	}
}

// handleAuthOK parses "AUTH_OK [<assigned-domain> [<token>]]" and, if a
// token is present, prefers it on the next reconnect.
func (a *Agent) handleAuthOK(line string) {
	fields := strings.Fields(line)
	a.log.Infow("authenticated", "reply", line)
	if len(fields) == 3 {
		a.credential.Store(fields[2])
	}
}

// handleConnect acquires a slot, dials the
// local service and a fresh data channel, splice them, release the slot.
func (a *Agent) handleConnect(ctx context.Context, id string) {
	select {
	case a.sem <- struct{}{}:
	default:
		a.log.Debugw("at MAX_CONCURRENT_CONNECTIONS, dropping CONNECT", "connID", id)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() { <-a.sem }()
		a.serveTunnel(ctx, id)
	}()
}

// serveTunnel dials the local service and the Bridge data channel and
// splices them together.
//
// The local socket has exactly one reader for its whole lifetime: the
// pendingBuffer's pump goroutine, started the moment local is dialled. It
// buffers bytes until flushTo hands it a destination, then keeps
// forwarding directly — so a second, generic splice reading local again
// would race it. Only the data-channel side needs its own copy goroutine.
func (a *Agent) serveTunnel(ctx context.Context, id string) {
	d := net.Dialer{Timeout: DialTimeout}

	localAddr := fmt.Sprintf("%s:%d", a.cfg.LocalHost, a.cfg.LocalPort)
	local, err := d.DialContext(ctx, "tcp", localAddr)
	if err != nil {
		a.log.Warnw("failed to dial local service", "connID", id, "error", err)
		return
	}
	defer local.Close()

	pre := newPendingBuffer(local, MaxPendingBufferSize)
	pumpDone := make(chan struct{})
	go func() {
		pre.pump()
		close(pumpDone)
	}()

	bridgeAddr := fmt.Sprintf("%s:%d", a.cfg.BridgeHost, a.cfg.BridgeControlPort)
	data, err := d.DialContext(ctx, "tcp", bridgeAddr)
	if err != nil {
		a.log.Warnw("failed to dial bridge data channel", "connID", id, "error", err)
		return
	}
	defer data.Close()

	if err := writeLine(data, "DATA "+id); err != nil {
		a.log.Warnw("failed to write DATA header", "connID", id, "error", err)
		return
	}
	if err := pre.flushTo(data); err != nil {
		a.log.Warnw("failed to flush buffered local bytes", "connID", id, "error", err)
		return
	}

	a.metrics.Gauge("agent_active_connections").Inc()
	defer a.metrics.Gauge("agent_active_connections").Dec()

	reverseDone := make(chan struct{})
	go func() {
		_, _ = copyLoop(local, data)
		close(reverseDone)
	}()

	select {
	case <-pumpDone:
	case <-reverseDone:
	}
	// Either side ending closes both, cascading the teardown to the other.
	_ = local.Close()
	_ = data.Close()
	<-pumpDone
	<-reverseDone
	a.log.Debugw("tunnel closed", "connID", id)
}

// writeLine writes s followed by '\n'.
func writeLine(nc net.Conn, s string) error {
	_, err := nc.Write([]byte(s + "\n"))
	return err
}

// copyLoop reads from src and writes to dst until either errors.
func copyLoop(dst, src net.Conn) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}
