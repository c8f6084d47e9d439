package bridge

import (
	"go.tunwire.dev/bridge/pkg/proxyproto"
)

// onChunkUnknown runs the per-chunk discrimination
// while role==roleUnknown.
func (c *conn) onChunkUnknown(chunk []byte) {
	c.unknownBuf = append(c.unknownBuf, chunk...)
	if len(c.unknownBuf) > MaxBufferSize {
		c.log.Debugw("discrimination buffer cap exceeded, closing", "remoteIP", c.remoteIP)
		c.close()
		return
	}

	n := proxyproto.Detect(c.unknownBuf)
	if n == 0 {
		return // still a prefix of a possible PROXY header; keep buffering
	}

	var eff []byte
	if n > 0 {
		eff = c.unknownBuf[n:]
	} else {
		eff = c.unknownBuf
	}

	if len(eff) < 6 {
		if isStrictPrefixOf(eff, prefixData) ||
			isStrictPrefixOf(eff, prefixAuth) ||
			isStrictPrefixBytes(eff, proxyproto.SigV2) {
			return // keep buffering
		}
		if len(eff) > 2 {
			c.classifyPlayer(eff)
			return
		}
		return // keep waiting
	}

	switch string(eff[:5]) {
	case prefixAuth, prefixData:
		line, rest, ok := splitFirstLine(eff)
		if !ok {
			return // command line not terminated yet, keep buffering
		}
		c.cancelHandshakeTimeout()
		if string(eff[:5]) == prefixAuth {
			c.handleAuthCommand(line)
		} else {
			c.handleDataCommand(line, rest)
		}
	default:
		c.classifyPlayer(eff)
	}
}
