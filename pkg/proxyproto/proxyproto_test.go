package proxyproto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.tunwire.dev/bridge/pkg/proxyproto"
)

func TestDetectV1Complete(t *testing.T) {
	buf := []byte("PROXY TCP4 1.2.3.4 5.6.7.8 1111 2222\r\nGET / HTTP/1.1")
	n := proxyproto.Detect(buf)
	assert.Equal(t, len("PROXY TCP4 1.2.3.4 5.6.7.8 1111 2222\r\n"), n)
}

func TestDetectV1Incomplete(t *testing.T) {
	assert.Equal(t, 0, proxyproto.Detect([]byte("PROXY ")))
	assert.Equal(t, 0, proxyproto.Detect([]byte("PROX")))
}

func TestDetectV2Complete(t *testing.T) {
	sig := []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}
	header := append(append([]byte{}, sig...), 0x21, 0x11, 0x00, 0x04)
	header = append(header, []byte{1, 2, 3, 4}...)
	payload := append(append([]byte{}, header...), []byte("player bytes")...)
	n := proxyproto.Detect(payload)
	assert.Equal(t, len(header), n)
}

func TestDetectV2Incomplete(t *testing.T) {
	sig := []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}
	assert.Equal(t, 0, proxyproto.Detect(sig))
}

func TestDetectNoHeader(t *testing.T) {
	assert.Equal(t, -1, proxyproto.Detect([]byte("\x10\x00somemchandshakebytes")))
}
