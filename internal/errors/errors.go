// Package errors defines the caller-visible error taxonomy shared by every
// component. Components never return raw provider/transport errors; they
// wrap them into one of these categories with fmt.Errorf("%w", ...) so
// callers can classify with errors.Is.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation - malformed task, unknown persona, unknown mode.
	ErrValidation = errors.New("validation error")

	// ErrTooLarge - task exceeds a backend's declared envelope.
	ErrTooLarge = errors.New("task too large for backend")

	// ErrTransport - network-layer failure; retriable.
	ErrTransport = errors.New("transport error")

	// ErrTimeout - request exceeded its deadline before a response arrived.
	ErrTimeout = errors.New("timeout")

	// ErrBackendUnavailable - all eligible backends unhealthy after fallback.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNoExecutor - forced routing impossible (e.g. FULL_LOCAL with LOCAL down).
	ErrNoExecutor = errors.New("no executor available")

	// ErrDeadlineExceeded - task deadline hit before completion.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrSessionNotFound - session id unknown to the orchestrator.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy - session cannot accept another concurrent request.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionMigrating - session is mid-migration and admits no new requests.
	ErrSessionMigrating = errors.New("session migrating")

	// ErrResourceExhausted - per-session or global limit refused admission.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInternal - invariant violation; logged and surfaced.
	ErrInternal = errors.New("internal error")
)

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory discards err's own message and re-wraps it under category,
// preserving errors.Is(result, category).
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, category)
}

func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

func Validation(message string) error { return fmt.Errorf("%s: %w", message, ErrValidation) }
func TooLarge(message string) error   { return fmt.Errorf("%s: %w", message, ErrTooLarge) }
func Transport(message string) error  { return fmt.Errorf("%s: %w", message, ErrTransport) }
func Timeout(message string) error    { return fmt.Errorf("%s: %w", message, ErrTimeout) }
func NoExecutor(message string) error { return fmt.Errorf("%s: %w", message, ErrNoExecutor) }
func DeadlineExceeded(message string) error {
	return fmt.Errorf("%s: %w", message, ErrDeadlineExceeded)
}
func SessionNotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrSessionNotFound)
}
func SessionBusy(message string) error { return fmt.Errorf("%s: %w", message, ErrSessionBusy) }
func SessionMigrating(message string) error {
	return fmt.Errorf("%s: %w", message, ErrSessionMigrating)
}
func ResourceExhausted(message string) error {
	return fmt.Errorf("%s: %w", message, ErrResourceExhausted)
}
func Internal(message string) error { return fmt.Errorf("%s: %w", message, ErrInternal) }

func BackendUnavailable(message string) error {
	return fmt.Errorf("%s: %w", message, ErrBackendUnavailable)
}

// IsRetryable reports whether the router should attempt another backend.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}
