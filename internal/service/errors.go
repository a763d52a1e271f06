// Package service implements the conversation and identity flows of the
// VOSS chat backend.
package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the services. Match with errors.Is.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrValidation         = errors.New("validation error")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrTimeout            = errors.New("generation timed out")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ThreadError wraps a failure that happened after Send created a new thread,
// so callers can still hand the thread id back.
type ThreadError struct {
	ThreadID string
	Err      error
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread %s: %v", e.ThreadID, e.Err)
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}

// CreatedThread returns the id of the thread created before err occurred,
// or "" when err carries none.
func CreatedThread(err error) string {
	var te *ThreadError
	if errors.As(err, &te) {
		return te.ThreadID
	}
	return ""
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
