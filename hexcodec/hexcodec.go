// Package hexcodec provides the lowercase-hex encoding and constant-time
// comparison helpers shared by the storage engine (version ids) and the
// signature engine (SigV4 signature comparison).
package hexcodec

import (
	"crypto/subtle"
	"encoding/hex"
)

// Encode returns the lowercase hex encoding of b.
func Encode(b []byte) string { return hex.EncodeToString(b) }

// Decode decodes a lowercase (or uppercase) hex string.
func Decode(s string) ([]byte, error) { return hex.DecodeString(s) }

// Equal reports whether two hex strings are identical (case-sensitive, so
// "AB" and "ab" differ), comparing in constant time with respect to where
// they first differ. Unequal lengths
// are rejected before the constant-time comparison, since SigV4 signatures
// and ETags are always fixed-length hex strings in practice.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// EqualBytes is the byte-slice equivalent of Equal.
func EqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
