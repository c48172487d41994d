package usecase

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAccessDenied     = errors.New("access denied")
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("user is not privileged")
	ErrPollClosed       = errors.New("poll is closed")
	ErrInvalidVote      = errors.New("invalid vote")
	ErrNoSuchOption     = errors.New("there is no such option in poll")
	ErrPollNotFound     = errors.New("poll not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeout          = errors.New("store call timed out")
)

// Unavailable wraps a driver error so that callers can match it with ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// IsTransient reports whether the call may succeed if retried later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
