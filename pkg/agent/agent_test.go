package agent

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tunwire.dev/bridge/pkg/config"
	"go.tunwire.dev/bridge/pkg/logging"
)

// fakeBridge is a minimal stand-in for the Bridge Broker: it accepts the
// control connection, replies AUTH_OK, then on request accepts a second
// ("data") connection and exercises the CONNECT/DATA handshake itself.
type fakeBridge struct {
	ln net.Listener
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeBridge{ln: ln}
}

func (f *fakeBridge) addr() string { return f.ln.Addr().String() }

// serveOneRendezvous accepts the control connection, authenticates it,
// sends one CONNECT, then accepts the resulting DATA connection and
// returns it so the test can assert on what arrives.
func (f *fakeBridge) serveOneRendezvous(t *testing.T, id string) (control, data net.Conn) {
	t.Helper()
	control, err := f.ln.Accept()
	require.NoError(t, err)

	r := bufio.NewReader(control)
	authLine, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, authLine, "AUTH ")

	_, err = control.Write([]byte("AUTH_OK alpha.bridge\n"))
	require.NoError(t, err)
	_, err = control.Write([]byte("CONNECT " + id + "\n"))
	require.NoError(t, err)

	data, err = f.ln.Accept()
	require.NoError(t, err)
	return control, data
}

func newTestAgent(t *testing.T, bridgeAddr, localAddr string) *Agent {
	t.Helper()
	host, portStr, err := net.SplitHostPort(bridgeAddr)
	require.NoError(t, err)
	lhost, lportStr, err := net.SplitHostPort(localAddr)
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	lport, err := strconv.Atoi(lportStr)
	require.NoError(t, err)

	return New(config.AgentConfig{
		BridgeHost:        host,
		BridgeControlPort: uint16(port),
		LocalHost:         lhost,
		LocalPort:         uint16(lport),
		Secret:            "s",
		Subdomain:         "alpha",
	}, logging.Nop, nil)
}

// TestAgentConnectDataFlow exercises the Agent's half of a CONNECT handshake:
// on CONNECT it dials the local service, opens a fresh data channel,
// writes the DATA header, and then splices both directions.
func TestAgentConnectDataFlow(t *testing.T) {
	local, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer local.Close()

	localConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := local.Accept()
		if err == nil {
			localConnCh <- c
		}
	}()

	bridge := newFakeBridge(t)
	defer bridge.ln.Close()

	a := newTestAgent(t, bridge.addr(), local.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	control, data := bridge.serveOneRendezvous(t, "conn-1")
	defer control.Close()
	defer data.Close()

	localConn := <-localConnCh
	defer localConn.Close()

	_, err = localConn.Write([]byte("greeting-from-service"))
	require.NoError(t, err)

	r := bufio.NewReader(data)
	_ = data.SetReadDeadline(time.Now().Add(2 * time.Second))
	dataLine, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "DATA conn-1\n", dataLine)

	buf := make([]byte, len("greeting-from-service"))
	_, err = readFullFrom(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "greeting-from-service", string(buf))

	// Bytes arriving at the data channel afterwards must reach the local
	// service too (reverse direction).
	_, err = data.Write([]byte("payload-from-bridge"))
	require.NoError(t, err)
	buf2 := make([]byte, len("payload-from-bridge"))
	_ = localConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = readFullFromConn(localConn, buf2)
	require.NoError(t, err)
	assert.Equal(t, "payload-from-bridge", string(buf2))
}

func readFullFrom(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readFullFromConn(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
