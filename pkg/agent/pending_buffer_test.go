package agent

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingBufferBuffersThenFlushesThenForwards(t *testing.T) {
	srcServer, srcClient := net.Pipe()
	defer srcClient.Close()
	dstServer, dstClient := net.Pipe()
	defer dstClient.Close()

	p := newPendingBuffer(srcServer, MaxPendingBufferSize)
	pumpDone := make(chan struct{})
	go func() {
		p.pump()
		close(pumpDone)
	}()

	go func() { _, _ = srcClient.Write([]byte("early-bytes")) }()
	time.Sleep(20 * time.Millisecond) // give pump a chance to buffer it

	flushErrCh := make(chan error, 1)
	go func() { flushErrCh <- p.flushTo(dstServer) }()

	buf := make([]byte, len("early-bytes"))
	_ = dstClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(dstClient, buf)
	require.NoError(t, err)
	assert.Equal(t, "early-bytes", string(buf))
	require.NoError(t, <-flushErrCh)

	go func() { _, _ = srcClient.Write([]byte("late-bytes")) }()
	buf2 := make([]byte, len("late-bytes"))
	_, err = io.ReadFull(dstClient, buf2)
	require.NoError(t, err)
	assert.Equal(t, "late-bytes", string(buf2))

	srcServer.Close()
	srcClient.Close()
	<-pumpDone
}

func TestPendingBufferCapEnforced(t *testing.T) {
	srcServer, srcClient := net.Pipe()
	defer srcClient.Close()
	defer srcServer.Close()

	p := newPendingBuffer(srcServer, 4)
	err := p.appendOrForward([]byte("abcd"))
	require.NoError(t, err)
	err = p.appendOrForward([]byte("e"))
	assert.ErrorIs(t, err, errPendingBufferFull)
}
