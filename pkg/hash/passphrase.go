package hash

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

func Hash(passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase must not be empty")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passphrase: %w", err)
	}

	return string(hashedBytes), nil
}

func Compare(hashedPassphrase, passphrase string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassphrase), []byte(passphrase))
}

// IsHash reports whether s looks like a bcrypt hash rather than a plain passphrase.
func IsHash(s string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Verify checks provided against a stored value that is either a bcrypt hash
// or a plain passphrase. An empty stored value never verifies.
func Verify(stored, provided string) bool {
	if stored == "" {
		return false
	}
	if IsHash(stored) {
		return Compare(stored, provided) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
}
