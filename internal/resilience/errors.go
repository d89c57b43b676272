// Package resilience holds the shared failure-handling primitives: the error
// taxonomy, exponential backoff with jitter, and the per-source sliding-window
// rate limiter.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ConfigError marks a source configuration problem: missing required fields
// or an endpoint that fails the reachability probe. Fatal for the run.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// NewConfigError creates a ConfigError with the given message.
func NewConfigError(msg string) *ConfigError {
	return &ConfigError{Msg: msg}
}

// IsConfigError reports whether the chain contains a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransientError wraps an error that is safe to retry (429, 5xx, network
// failures). StatusCode is 0 for non-HTTP failures.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for HTTP statuses that are safe to
// retry. 4xx other than 429 is immediately fatal.
func IsTransientHTTPStatus(statusCode int) bool {
	return statusCode == 429 || statusCode >= 500
}
