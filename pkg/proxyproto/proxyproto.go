// Package proxyproto detects and strips a HAProxy PROXY protocol v1/v2
// preamble from the start of a freshly accepted connection, before the
// Bridge Broker's own role discrimination sees the bytes.
//
// The contract is peek-only: callers pass the bytes buffered so far and
// get back how many of them belong to a PROXY header, without the
// stripper consuming anything itself. That shape doesn't fit the
// consuming io.Reader-based API the ecosystem's go-proxyproto package
// exposes, so this is hand-rolled against the literal byte grammar (see
// DESIGN.md).
package proxyproto

import "bytes"

// v1Prefix is the fixed prefix every PROXY protocol v1 header starts with.
var v1Prefix = []byte("PROXY ")

// SigV2 is the fixed 12-byte signature every PROXY protocol v2 header
// starts with. Exported so callers classifying a short prefix buffer can
// check it directly.
var SigV2 = []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// sigV2 is retained as a private alias for readability below.
var sigV2 = SigV2

// Detect inspects buf, the bytes accumulated so far from a new
// connection, and reports how much of it is a PROXY header:
//
//   - -1: buf definitively does not start with a PROXY header; the
//     caller should treat all of buf as user data.
//   - 0: buf is a strict prefix of a valid header so far; the caller
//     must buffer more bytes before a decision can be made.
//   - n > 0: the first n bytes of buf are the complete PROXY header
//     and should be stripped before further processing.
func Detect(buf []byte) int {
	if n := detectV1(buf); n != 0 {
		return n
	}
	if n := detectV2(buf); n != 0 {
		return n
	}
	// Neither v1 nor v2 claimed it was incomplete, so it's definitely not
	// a PROXY header.
	return -1
}

// detectV1 returns -1 (not v1), 0 (maybe, need more), or n>0 (complete).
func detectV1(buf []byte) int {
	common := min(len(buf), len(v1Prefix))
	if !bytes.Equal(buf[:common], v1Prefix[:common]) {
		return -1
	}
	if len(buf) < len(v1Prefix) {
		return 0 // strict prefix of "PROXY ", need more
	}
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return 0
	}
	return idx + 1
}

// detectV2 returns -1 (not v2), 0 (maybe, need more), or n>0 (complete).
func detectV2(buf []byte) int {
	common := min(len(buf), len(sigV2))
	if !bytes.Equal(buf[:common], sigV2[:common]) {
		return -1
	}
	if len(buf) < 16 {
		return 0 // need the 12-byte signature + ver/cmd + fam/proto + 2-byte length
	}
	length := int(buf[14])<<8 | int(buf[15])
	total := 16 + length
	if len(buf) < total {
		return 0
	}
	return total
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
