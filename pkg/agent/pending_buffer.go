package agent

import (
	"errors"
	"net"
	"sync"
)

// errPendingBufferFull is returned when buffered local-service bytes would
// exceed the configured cap.
var errPendingBufferFull = errors.New("agent: pending buffer full")

// pendingBuffer reads from a freshly dialled local-service connection and
// either buffers the bytes (before the data channel exists) or forwards
// them straight through (after). The same locked append-or-forward /
// pair-and-flush shape as pkg/bridge's conn buffer, for the same reason:
// flushTo's drain and pump's concurrent reads must never interleave their
// writes to dst out of order.
type pendingBuffer struct {
	src net.Conn
	cap int

	mu      sync.Mutex
	dst     net.Conn
	buffer  []byte
	flushed bool
}

func newPendingBuffer(src net.Conn, cap int) *pendingBuffer {
	return &pendingBuffer{src: src, cap: cap}
}

// pump reads from src until it errors or src.Close() is called elsewhere
// (e.g. by the tunnel's teardown). It is meant to run in its own
// goroutine for the lifetime of the pendingBuffer.
func (p *pendingBuffer) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.src.Read(buf)
		if n > 0 {
			if ferr := p.appendOrForward(buf[:n]); ferr != nil {
				_ = p.src.Close()
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *pendingBuffer) appendOrForward(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dst != nil {
		_, err := p.dst.Write(chunk)
		return err
	}
	if len(p.buffer)+len(chunk) > p.cap {
		return errPendingBufferFull
	}
	p.buffer = append(p.buffer, chunk...)
	return nil
}

// flushTo writes whatever has been buffered so far to dst as a single
// payload, then assigns dst as the forwarding target for anything pump
// reads afterwards. Safe to call concurrently with an
// in-flight pump goroutine.
func (p *pendingBuffer) flushTo(dst net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) > 0 {
		if _, err := dst.Write(p.buffer); err != nil {
			return err
		}
		p.buffer = nil
	}
	p.dst = dst
	p.flushed = true
	return nil
}
