package auth

import "crypto/subtle"

// secureCompare reports whether a and b hold the same bytes, in time that
// does not depend on their contents once their lengths are known. The
// length check itself is not constant-time, which is fine: a credential's
// length is not secret, only its content is. Don't "fix" this into a
// fully length-hiding compare; that's not what's being protected here.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
