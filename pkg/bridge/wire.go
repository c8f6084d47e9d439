package bridge

import "strings"

// Line-protocol prefixes. Commands are recognised by their
// first 5 bytes, including the trailing space.
const (
	prefixAuth = "AUTH "
	prefixData = "DATA "
)

// AUTH_FAIL* / AUTH_OK reply lines.
const (
	replyAuthFailLocked                   = "AUTH_FAIL_LOCKED"
	replyAuthFail                         = "AUTH_FAIL"
	replyAuthFailInUse                    = "AUTH_FAIL_IN_USE"
	replyAuthFailInvalidFormat            = "AUTH_FAIL_INVALID_FORMAT"
	replyAuthFailInvalidCredentials       = "AUTH_FAIL_INVALID_CREDENTIALS"
	replyAuthFailAgentAlreadyConnected    = "AUTH_FAIL_AGENT_ALREADY_CONNECTED"
)

// splitFirstLine splits buf at the first '\n', returning the line
// (without the newline) and the remainder. ok is false if no '\n' is
// present yet.
func splitFirstLine(buf []byte) (line string, rest []byte, ok bool) {
	idx := -1
	for i, b := range buf {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", nil, false
	}
	return strings.TrimRight(string(buf[:idx]), "\r"), buf[idx+1:], true
}

// isStrictPrefixOf reports whether short is a non-empty, proper prefix of
// full (used while a connection is still too short to classify).
func isStrictPrefixOf(short []byte, full string) bool {
	if len(short) == 0 || len(short) >= len(full) {
		return false
	}
	return full[:len(short)] == string(short)
}

// isStrictPrefixBytes is isStrictPrefixOf for a []byte pattern (used for
// the PROXY v2 signature check).
func isStrictPrefixBytes(short, full []byte) bool {
	if len(short) == 0 || len(short) >= len(full) {
		return false
	}
	for i := range short {
		if short[i] != full[i] {
			return false
		}
	}
	return true
}
