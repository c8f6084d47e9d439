package bridge

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tunwire.dev/bridge/pkg/config"
	"go.tunwire.dev/bridge/pkg/logging"
	"go.tunwire.dev/bridge/pkg/varint"
)

// startTestBroker binds a Broker to an OS-assigned port and returns its
// address and a cancel func that shuts it down.
func startTestBroker(t *testing.T, cfg config.BridgeConfig) (addr string, cancel func()) {
	t.Helper()
	cfg.Port = 0
	b := New(cfg, logging.Nop, nil)

	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	a := b.Addr()
	return a.String(), func() {
		cancelCtx()
		<-done
	}
}

func dialLine(t *testing.T, addr, line string) net.Conn {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = nc.Write([]byte(line))
	require.NoError(t, err)
	return nc
}

func readLine(t *testing.T, nc net.Conn) string {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(nc).ReadString('\n')
	require.NoError(t, err)
	return line
}

// TestSharedSecretAuth covers spec scenario S1.
func TestSharedSecretAuth(t *testing.T) {
	addr, cancel := startTestBroker(t, config.BridgeConfig{Secret: "s", Domain: "bridge"})
	defer cancel()

	agent := dialLine(t, addr, "AUTH s alpha\n")
	defer agent.Close()

	assert.Equal(t, "AUTH_OK alpha.bridge\n", readLine(t, agent))
}

// TestAuthLockout covers spec scenario S2.
func TestAuthLockout(t *testing.T) {
	addr, cancel := startTestBroker(t, config.BridgeConfig{Secret: "s", Domain: "bridge"})
	defer cancel()

	for i := 0; i < MaxAuthAttempts; i++ {
		nc := dialLine(t, addr, "AUTH wrong x\n")
		line := readLine(t, nc)
		if i < MaxAuthAttempts-1 {
			assert.Equal(t, replyAuthFail+"\n", line)
		} else {
			assert.Equal(t, replyAuthFailLocked+"\n", line)
		}
		nc.Close()
	}

	// Even a correct credential is refused while locked out.
	nc := dialLine(t, addr, "AUTH s alpha\n")
	defer nc.Close()
	assert.Equal(t, replyAuthFailLocked+"\n", readLine(t, nc))
}

// TestSubdomainInUseRejected exercises the agent-registry collision path
// of S1's authentication handler.
func TestSubdomainInUseRejected(t *testing.T) {
	addr, cancel := startTestBroker(t, config.BridgeConfig{Secret: "s", Domain: "bridge"})
	defer cancel()

	first := dialLine(t, addr, "AUTH s alpha\n")
	defer first.Close()
	require.Equal(t, "AUTH_OK alpha.bridge\n", readLine(t, first))

	second := dialLine(t, addr, "AUTH s alpha\n")
	defer second.Close()
	assert.Equal(t, replyAuthFailInUse+"\n", readLine(t, second))
}

func minecraftHandshake(t *testing.T, serverAddress string) []byte {
	t.Helper()
	buf, err := varint.EncodeHandshake(&varint.Handshake{
		ProtocolVersion: 763,
		ServerAddress:   serverAddress,
		ServerPort:      25565,
		NextState:       2,
	})
	require.NoError(t, err)
	return buf
}

// TestRendezvousCoalescing covers spec scenario S4: a player's handshake
// and immediately-following payload both reach the local side in order,
// across whichever of the player/agent sockets wins the race to arrive
// first at the Bridge.
func TestRendezvousCoalescing(t *testing.T) {
	addr, cancel := startTestBroker(t, config.BridgeConfig{Secret: "s", Domain: "bridge"})
	defer cancel()

	agentCtl := dialLine(t, addr, "AUTH s survival\n")
	defer agentCtl.Close()
	require.Equal(t, "AUTH_OK survival.bridge\n", readLine(t, agentCtl))

	handshake := minecraftHandshake(t, "survival.bridge")
	payload := []byte("hello-from-player")

	player, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer player.Close()
	_, err = player.Write(append(append([]byte(nil), handshake...), payload...))
	require.NoError(t, err)

	connectLine := readLine(t, agentCtl)
	require.Len(t, connectLine, len("CONNECT ")+37) // "CONNECT " + uuid + "\n"

	id := connectLine[len("CONNECT ") : len(connectLine)-1]

	data, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer data.Close()
	_, err = data.Write([]byte("DATA " + id + "\n"))
	require.NoError(t, err)

	want := append(append([]byte(nil), handshake...), payload...)
	got := make([]byte, len(want))
	_ = data.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = readFull(data, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func readFull(nc net.Conn, buf []byte) (int, error) {
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

// TestPendingTimeout covers spec scenario S5.
func TestPendingTimeout(t *testing.T) {
	addr, cancel := startTestBroker(t, config.BridgeConfig{Secret: "s", Domain: "bridge"})
	defer cancel()

	agentCtl := dialLine(t, addr, "AUTH s survival\n")
	defer agentCtl.Close()
	require.Equal(t, "AUTH_OK survival.bridge\n", readLine(t, agentCtl))

	player, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer player.Close()
	_, err = player.Write(minecraftHandshake(t, "survival.bridge"))
	require.NoError(t, err)

	connectLine := readLine(t, agentCtl)
	id := connectLine[len("CONNECT ") : len(connectLine)-1]

	// Let PendingTimeout elapse without ever opening a DATA channel.
	_ = player.SetReadDeadline(time.Now().Add(PendingTimeout + 3*time.Second))
	buf := make([]byte, 1)
	_, err = player.Read(buf)
	assert.Error(t, err, "player connection must be closed once PENDING_TIMEOUT elapses")

	// A now-late DATA for the same id must be closed immediately with no
	// pairing.
	late := dialLine(t, addr, "DATA "+id+"\n")
	defer late.Close()
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = late.Read(buf)
	assert.Error(t, err)
}
