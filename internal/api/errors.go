package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

// ErrUnauthorized indicates the service rejected the API key.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned when the service answers with a non-200 status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s failed: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is matches ErrUnauthorized for 401 and 403 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == nethttp.StatusUnauthorized || e.StatusCode == nethttp.StatusForbidden)
}

// IsThrottled reports whether err is a 429 response.
func IsThrottled(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == nethttp.StatusTooManyRequests
}
