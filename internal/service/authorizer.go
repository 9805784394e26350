package service

import "crypto/subtle"

// Authorize reports whether provided matches the configured write secret.
// An empty expected secret rejects everything.
func Authorize(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
