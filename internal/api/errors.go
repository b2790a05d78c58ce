package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrVersionConflict means the game changed since the expected version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAuthExpired means the server rejected the access token.
	ErrAuthExpired = errors.New("authentication expired")

	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
