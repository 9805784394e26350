package service

import "errors"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnlockDisabled = errors.New("unlock passphrase not configured")
)

// ValidationError is a rejected request body. Nothing was written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}
