package domain

import (
	"errors"
	"strings"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidState    = errors.New("profile status does not allow submission")
	ErrNotReady        = errors.New("profile is not ready to submit")
	ErrUnhandled       = errors.New("unexpected error")
)

// NotReadyError carries every unmet submission prerequisite. It matches ErrNotReady.
type NotReadyError struct {
	Reasons []string
}

func (e *NotReadyError) Error() string {
	return ErrNotReady.Error() + ": " + strings.Join(e.Reasons, ", ")
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}
